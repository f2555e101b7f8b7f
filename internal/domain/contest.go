package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Contest struct {
	ContestID uuid.UUID
	Slug      string
	Title     string
	StartAt   time.Time
	EndAt     time.Time
	Languages []Language
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (c Contest) HasStarted(now time.Time) bool {
	return !now.Before(c.StartAt)
}

func (c Contest) HasFinished(now time.Time) bool {
	return !now.Before(c.EndAt)
}

func (c Contest) IsActive(now time.Time) bool {
	return c.HasStarted(now) && !c.HasFinished(now)
}

func (c Contest) AllowsLanguage(language Language) bool {
	for _, allowed := range c.Languages {
		if allowed == language {
			return true
		}
	}
	return false
}

type Language string

const (
	LanguageCPP17      Language = "CPP_17"
	LanguageJava21     Language = "JAVA_21"
	LanguagePython312  Language = "PYTHON_3_12"
	LanguageGo123      Language = "GO_1_23"
	LanguageKotlin19   Language = "KOTLIN_1_9"
	LanguageJavaScript Language = "JAVASCRIPT_22"
)

func NormalizeLanguage(v string) Language {
	return Language(strings.ToUpper(strings.TrimSpace(v)))
}

type Problem struct {
	ProblemID   uuid.UUID
	ContestID   uuid.UUID
	Letter      string
	Title       string
	TimeLimitMS int
}
