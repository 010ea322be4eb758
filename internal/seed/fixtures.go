package seed

import (
	"context"
	"fmt"
	"os"

	"diary/internal/models"
	"diary/internal/repository"
	"diary/internal/validation"

	"gopkg.in/yaml.v3"
)

// Fixtures is a hand-written data set, usually loaded from YAML:
//
//	users:
//	  - username: alice
//	    password: correct-horse
//	    entries:
//	      - title: Day 1
//	        content: Hello
type Fixtures struct {
	Users []FixtureUser `yaml:"users"`
}

// FixtureUser is one user and the entries it owns.
type FixtureUser struct {
	Username string         `yaml:"username"`
	Password string         `yaml:"password"`
	Entries  []FixtureEntry `yaml:"entries"`
}

// FixtureEntry is one diary entry.
type FixtureEntry struct {
	Title   string `yaml:"title"`
	Content string `yaml:"content"`
}

// LoadFixtures reads and validates a YAML fixture file.
func LoadFixtures(path string) (*Fixtures, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixtures %s: %w", path, err)
	}
	return ParseFixtures(data)
}

// ParseFixtures decodes YAML fixtures and checks them against the same rules
// the API applies.
func ParseFixtures(data []byte) (*Fixtures, error) {
	var f Fixtures
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode fixtures: %w", err)
	}

	seen := make(map[string]bool, len(f.Users))
	for i, u := range f.Users {
		if err := validation.ValidateCredentials(u.Username, u.Password); err != nil {
			return nil, fmt.Errorf("fixture user %d (%q): %w", i, u.Username, err)
		}
		if seen[u.Username] {
			return nil, fmt.Errorf("fixture user %q listed twice", u.Username)
		}
		seen[u.Username] = true
		for j, e := range u.Entries {
			if err := validation.ValidateEntry(models.EntryFields{Title: e.Title, Content: e.Content}); err != nil {
				return nil, fmt.Errorf("fixture %s entry %d: %w", u.Username, j, err)
			}
		}
	}
	return &f, nil
}

// Apply creates the fixture users and their entries. Entries are created in
// file order, so the last one listed is the newest.
func Apply(ctx context.Context, store repository.Store, f *Fixtures, passwordCost int) (*Summary, error) {
	summary := &Summary{}
	for _, u := range f.Users {
		hash, err := hashPassword(u.Password, passwordCost)
		if err != nil {
			return summary, err
		}
		user, err := store.CreateUser(ctx, models.User{Username: u.Username, Password: hash})
		if err != nil {
			return summary, fmt.Errorf("create fixture user %s: %w", u.Username, err)
		}
		summary.Users = append(summary.Users, user)

		for _, e := range u.Entries {
			if _, err := store.CreateEntry(ctx, user.ID, models.EntryFields{Title: e.Title, Content: e.Content}); err != nil {
				return summary, fmt.Errorf("create fixture entry for %s: %w", u.Username, err)
			}
			summary.Entries++
		}
	}
	return summary, nil
}
