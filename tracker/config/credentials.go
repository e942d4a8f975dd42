package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

const bcryptCost = 10

var ErrInvalidCredentialSpec = errors.New("invalid credential specification")

type UserRecord struct {
	PasswordHash []byte
	Disabled     bool
}

// Credentials is the table of users allowed to log in. It is built once at
// startup and never modified afterwards.
type Credentials struct {
	users map[string]UserRecord
}

func NewCredentials(users map[string]UserRecord) Credentials {
	copied := make(map[string]UserRecord, len(users))
	for name, record := range users {
		copied[name] = record
	}
	return Credentials{users: copied}
}

func HashPassword(password string) ([]byte, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("error encrypting password: %w", err)
	}
	return hash, nil
}

// ParseCredentials reads a comma separated list of username:password pairs.
// Passwords are hashed as they are loaded.
func ParseCredentials(spec string) (Credentials, error) {
	users := make(map[string]UserRecord)

	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		username, password, ok := strings.Cut(entry, ":")
		if !ok || username == "" {
			return Credentials{}, fmt.Errorf("%w: expected username:password, got '%v'", ErrInvalidCredentialSpec, entry)
		}

		hash, err := HashPassword(password)
		if err != nil {
			return Credentials{}, err
		}
		users[username] = UserRecord{PasswordHash: hash}
	}

	if len(users) == 0 {
		return Credentials{}, fmt.Errorf("%w: no users defined", ErrInvalidCredentialSpec)
	}

	return Credentials{users: users}, nil
}

type credentialsFile struct {
	Users map[string]struct {
		PasswordHash string `yaml:"password_hash"`
		Disabled     bool   `yaml:"disabled"`
	} `yaml:"users"`
}

// LoadCredentialsFile reads users with pre-hashed passwords from a yaml file:
//
//	users:
//	  alice:
//	    password_hash: $2a$10$...
//	    disabled: false
func LoadCredentialsFile(path string) (Credentials, error) {
	file, err := os.Open(path)
	if err != nil {
		return Credentials{}, fmt.Errorf("error opening credentials file: %w", err)
	}
	defer file.Close()

	var parsed credentialsFile
	if err := yaml.NewDecoder(file).Decode(&parsed); err != nil {
		return Credentials{}, fmt.Errorf("error parsing credentials file %v: %w", path, err)
	}

	users := make(map[string]UserRecord, len(parsed.Users))
	for name, user := range parsed.Users {
		if _, err := bcrypt.Cost([]byte(user.PasswordHash)); err != nil {
			return Credentials{}, fmt.Errorf("%w: invalid password hash for user '%v': %v", ErrInvalidCredentialSpec, name, err)
		}
		users[name] = UserRecord{PasswordHash: []byte(user.PasswordHash), Disabled: user.Disabled}
	}

	if len(users) == 0 {
		return Credentials{}, fmt.Errorf("%w: no users defined in %v", ErrInvalidCredentialSpec, path)
	}

	return Credentials{users: users}, nil
}

func (c Credentials) Lookup(username string) (UserRecord, bool) {
	record, ok := c.users[username]
	return record, ok
}

func (c Credentials) Usernames() []string {
	names := make([]string, 0, len(c.users))
	for name := range c.users {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
