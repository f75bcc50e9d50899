package database

import (
	"crypto/md5"
	"encoding/hex"
	"net/mail"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// User is the minimal account record the dispatch engine needs. Identity and
// session handling live in the external auth layer; the engine only resolves
// API tokens back to user ids.
type User struct {
	Model
	Name     string `json:"name"`
	Email    string `json:"-" gorm:"unique"`
	ApiToken string `json:"-" gorm:"uniqueIndex"`
}

func GenerateToken(tokenBase string) string {
	hash, err := bcrypt.GenerateFromPassword([]byte(tokenBase), bcrypt.DefaultCost)
	if err != nil {
		panic(err)
	}

	hasher := md5.New()
	hasher.Write(hash)
	return hex.EncodeToString(hasher.Sum(nil))
}

func RegisterUser(
	db *gorm.DB,
	name string,
	email string,
) (*User, error) {
	_, err := mail.ParseAddress(email)
	if err != nil {
		return nil, err
	}

	var user User = User{
		Name:     name,
		Email:    email,
		ApiToken: GenerateToken(email),
	}

	r := db.Create(&user)

	if r.Error != nil {
		return nil, r.Error
	}

	return &user, nil
}

func GetUserByToken(db *gorm.DB, token string) (*User, error) {
	var user User
	if err := db.First(&user, "api_token = ?", token).Error; err != nil {
		return nil, err
	}
	return &user, nil
}
