package database

var Tabels []interface{} = []interface{}{
	&User{},
	&ServiceInfo{},
	&Action{},
	&Reaction{},
	&UserService{},
	&Area{},
}
