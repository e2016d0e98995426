package doctor

import (
	"fmt"

	"github.com/okssh/okssh/internal/config"
)

// CategoryConfig groups the server list checks.
const CategoryConfig = "CONFIG"

// ModelCheck loads and validates the YAML server list.
type ModelCheck struct {
	Path    string
	Options []config.LoadOption
}

func (c *ModelCheck) Name() string     { return "server_list" }
func (c *ModelCheck) Category() string { return CategoryConfig }

func (c *ModelCheck) Run() CheckResult {
	m, err := config.Load(c.Path, c.Options...)
	if err == nil {
		err = config.Validate(m)
	}
	if err != nil {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusFail,
			Message:    firstLine(err.Error()),
			Suggestion: fmt.Sprintf("Fix %s and run okssh doctor again", c.Path),
		}
	}
	return CheckResult{
		Name:   c.Name(),
		Status: StatusPass,
		Message: fmt.Sprintf("%s: %d servers, %d marked for adding, base profile '%s'",
			c.Path, len(m.Servers), len(m.Desired()), m.BaseProfile),
	}
}
