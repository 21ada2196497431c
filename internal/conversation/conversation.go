package conversation

import (
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"familynest/internal/ai"
	"familynest/internal/domain/archive"
	"familynest/internal/domain/family"
	"familynest/internal/i18n"
)

var (
	ErrBusy      = errors.New("still answering the previous message")
	ErrNoPersona = errors.New("no deceased family member to speak as")
)

const DefaultTimeout = 60 * time.Second

// Deps are the collaborators every conversation needs.
type Deps struct {
	Service  ai.Service
	Repo     archive.Repository
	Family   *family.Directory
	Messages *i18n.Messages
	Logger   logrus.FieldLogger
	// Timeout bounds each service call.
	Timeout time.Duration
}

func (d Deps) withDefaults() Deps {
	if d.Messages == nil {
		d.Messages = i18n.English()
	}
	if d.Logger == nil {
		d.Logger = logrus.StandardLogger()
	}
	if d.Timeout <= 0 {
		d.Timeout = DefaultTimeout
	}
	if d.Family == nil {
		d.Family = family.NewDirectory()
	}
	return d
}
