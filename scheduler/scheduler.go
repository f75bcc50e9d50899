package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"area/api/dispatch"
	"area/database"

	"github.com/go-co-op/gocron"
	"gorm.io/gorm"
)

// SchedulerService manages all scheduled tasks: the per-Area polling tasks
// for poll-only triggers and the maintenance tasks.
type SchedulerService struct {
	scheduler    *gocron.Scheduler
	DB           *gorm.DB
	ctx          context.Context
	cancel       context.CancelFunc
	orchestrator *dispatch.Orchestrator

	// mu guards registeredTasks and the paired gocron register/remove
	// calls; Area tasks are added and removed from concurrent requests.
	mu              sync.Mutex
	registeredTasks map[string]Task
}

// NewSchedulerService creates a new scheduler service
func NewSchedulerService(DB *gorm.DB, orchestrator *dispatch.Orchestrator) *SchedulerService {
	ctx, cancel := context.WithCancel(context.Background())

	s := gocron.NewScheduler(time.UTC)

	service := &SchedulerService{
		scheduler:       s,
		DB:              DB,
		ctx:             ctx,
		cancel:          cancel,
		orchestrator:    orchestrator,
		registeredTasks: make(map[string]Task),
	}

	return service
}

// Start begins running the scheduler
func (s *SchedulerService) Start() {
	log.Println("Starting scheduler service...")
	s.scheduler.StartAsync()
}

// Stop halts all scheduled jobs
func (s *SchedulerService) Stop() {
	log.Println("Stopping scheduler service...")
	s.scheduler.Stop()
	s.cancel()
}

// RegisterTasks sets up the maintenance tasks
func (s *SchedulerService) RegisterTasks() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registerTaskGroup(MaintenanceTasks(s.DB))
	log.Printf("Registered %d scheduled tasks", len(s.registeredTasks))
}

func (s *SchedulerService) registerTaskGroup(tasks []Task) {
	for _, task := range tasks {
		if !task.Enabled {
			log.Printf("Skipping disabled task: %s", task.Name)
			continue
		}
		s.registerTask(task)
	}
}

// registerTask registers a single task with the scheduler. Callers hold mu.
func (s *SchedulerService) registerTask(task Task) {
	s.registeredTasks[task.Name] = task

	var job *gocron.Job
	var err error
	run := func() {
		if err := task.Handler(); err != nil {
			log.Printf("Error in task %s: %v", task.Name, err)
		}
	}
	if task.Every > 0 {
		job, err = s.scheduler.Every(task.Every).Do(run)
	} else {
		job, err = s.scheduler.Cron(task.Schedule).Do(run)
	}

	if err != nil {
		log.Printf("Error scheduling task %s: %v", task.Name, err)
		return
	}

	job.Tag(task.Name)
	log.Printf("Registered task: %s", task.Name)
}

// AddTask adds a new task to the scheduler dynamically
func (s *SchedulerService) AddTask(task Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.registeredTasks[task.Name]; exists {
		return fmt.Errorf("task with name '%s' already exists", task.Name)
	}
	s.registerTask(task)
	return nil
}

// RemoveTask removes a task from the scheduler by name
func (s *SchedulerService) RemoveTask(taskName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.registeredTasks[taskName]; !exists {
		return fmt.Errorf("task with name '%s' does not exist", taskName)
	}
	delete(s.registeredTasks, taskName)
	s.scheduler.RemoveByTag(taskName)
	log.Printf("Removed task: %s", taskName)
	return nil
}

// GetTaskByName returns a task by its name
func (s *SchedulerService) GetTaskByName(name string) (Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, exists := s.registeredTasks[name]
	return task, exists
}

// ListTasks returns all registered tasks
func (s *SchedulerService) ListTasks() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	tasks := make([]Task, 0, len(s.registeredTasks))
	for _, task := range s.registeredTasks {
		tasks = append(tasks, task)
	}
	return tasks
}

func areaTaskName(areaID uint) string {
	return fmt.Sprintf("area_poll_%d", areaID)
}

// AddAreaTask schedules the polling task for one Area whose action has no
// push channel. The cadence matches the trigger recency window so events are
// neither missed nor double-counted more than the window already allows.
func (s *SchedulerService) AddAreaTask(area *database.Area) error {
	areaID := area.ID
	return s.AddTask(Task{
		Name:        areaTaskName(areaID),
		Description: fmt.Sprintf("Poll %s/%s for area %s", area.ActionServiceType, area.ActionName, area.UUID),
		Every:       time.Minute,
		Enabled:     true,
		Handler: func() error {
			return s.orchestrator.PollArea(s.ctx, areaID)
		},
	})
}

// RemoveAreaTask drops an Area's polling task, if any. Push-based Areas
// never had one, so a missing task is not an error.
func (s *SchedulerService) RemoveAreaTask(areaID uint) {
	_ = s.RemoveTask(areaTaskName(areaID))
}

// InitializeAreaTasks restores polling tasks for the active poll-based Areas
// after a restart.
func (s *SchedulerService) InitializeAreaTasks(polledActions map[string][]string) {
	count := 0
	for serviceType, actions := range polledActions {
		for _, actionName := range actions {
			areas, err := database.FindActiveAreasByAction(s.DB, serviceType, actionName)
			if err != nil {
				log.Printf("Error finding polled areas for %s/%s: %v", serviceType, actionName, err)
				continue
			}
			for i := range areas {
				if err := s.AddAreaTask(&areas[i]); err != nil {
					log.Printf("Error adding polling task for area %s: %v", areas[i].UUID, err)
					continue
				}
				count++
			}
		}
	}
	log.Printf("Initialized polling tasks for %d areas", count)
}
