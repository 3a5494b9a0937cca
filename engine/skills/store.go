// Package skills stores reusable knowledge as markdown files the agent
// writes for itself and loads back into context on demand.
package skills

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aionlabs/aion/engine/core"
	"github.com/aionlabs/aion/engine/planner"
)

// descriptionMax bounds the extracted first-paragraph summary.
const descriptionMax = 200

// ErrNotFound is returned when no skill matches the requested name.
var ErrNotFound = errors.New("skill not found")

// Skill is one stored markdown document with extracted metadata.
type Skill struct {
	Name        string    `json:"name"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Size        int       `json:"size"`
	Modified    time.Time `json:"modified"`
}

// Store keeps skills as flat .md files under one directory.
type Store struct {
	dir string
}

func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, core.NewError(errors.New("skills dir is required"), "INVALID_INPUT", nil)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("skills: create dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// normalize maps a free-form skill name onto a safe flat filename.
func normalize(name string) string {
	safe := strings.ToLower(strings.TrimSpace(name))
	safe = strings.ReplaceAll(safe, " ", "-")
	safe = strings.ReplaceAll(safe, "/", "-")
	safe = strings.TrimSuffix(safe, ".md")
	return safe
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, normalize(name)+".md")
}

// List returns every skill sorted by name, with title and description
// extracted from the markdown.
func (s *Store) List(_ context.Context) ([]Skill, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("skills: read dir: %w", err)
	}
	skills := make([]Skill, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".md")
		title, description := extractMeta(string(data), name)
		skills = append(skills, Skill{
			Name:        name,
			Title:       title,
			Description: description,
			Size:        len(data),
			Modified:    info.ModTime().UTC(),
		})
	}
	sort.Slice(skills, func(i, k int) bool { return skills[i].Name < skills[k].Name })
	return skills, nil
}

// Read returns a skill's full markdown content.
func (s *Store) Read(_ context.Context, name string) (string, error) {
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("skills: read %q: %w", name, err)
	}
	return string(data), nil
}

// Write creates or replaces a skill.
func (s *Store) Write(_ context.Context, name, content string) error {
	if normalize(name) == "" {
		return core.NewError(errors.New("skill name is required"), "INVALID_INPUT", nil)
	}
	if strings.TrimSpace(content) == "" {
		return core.NewError(errors.New("skill content is required"), "INVALID_INPUT", nil)
	}
	if err := os.WriteFile(s.path(name), []byte(content), 0o644); err != nil {
		return fmt.Errorf("skills: write %q: %w", name, err)
	}
	return nil
}

// Delete removes a skill.
func (s *Store) Delete(_ context.Context, name string) error {
	err := os.Remove(s.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("skills: delete %q: %w", name, err)
	}
	return nil
}

// ListSkills adapts the store to the planner's prompt-section contract.
func (s *Store) ListSkills(ctx context.Context) ([]planner.SkillInfo, error) {
	skills, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]planner.SkillInfo, 0, len(skills))
	for _, skill := range skills {
		out = append(out, planner.SkillInfo{Name: skill.Name, Title: skill.Title})
	}
	return out, nil
}

// extractMeta pulls the title from the first "# " heading and the
// description from the first body paragraph after it.
func extractMeta(content, name string) (string, string) {
	title := titleize(strings.ReplaceAll(name, "-", " "))
	var description string
	inBody := false
	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(line, "# ") {
			if !inBody {
				title = strings.TrimSpace(line[2:])
				inBody = true
			}
			continue
		}
		if inBody && strings.TrimSpace(line) != "" && !strings.HasPrefix(line, "#") {
			description = core.Truncate(strings.TrimSpace(line), descriptionMax)
			break
		}
	}
	return title, description
}

func titleize(s string) string {
	words := strings.Fields(s)
	for i, word := range words {
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}
