package util

import (
	"errors"
	"net/http"

	"area/database"

	"gorm.io/gorm"
)

func GetDBAndUser(r *http.Request) (*gorm.DB, *database.User, error) {
	DB, ok := r.Context().Value("db").(*gorm.DB)
	if !ok {
		return nil, nil, errors.New("invalid database")
	}

	user, ok := r.Context().Value("user").(*database.User)
	if !ok {
		return nil, nil, errors.New("invalid user")
	}
	return DB, user, nil
}

func GetDB(r *http.Request) (*gorm.DB, error) {
	DB, ok := r.Context().Value("db").(*gorm.DB)
	if !ok {
		return nil, errors.New("invalid database")
	}
	return DB, nil
}
