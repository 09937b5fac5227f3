package harness

import "fmt"

// ArgumentError reports a required argument that was empty. It is never
// caught by the harness and propagates to the caller.
type ArgumentError struct {
	Op  string // stage, generate, translate or compile
	Arg string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("%s: %s must be provided", e.Op, e.Arg)
}

// DuplicateAppError reports two applications that would be staged into the
// same workspace directory.
type DuplicateAppError struct {
	Name          string
	First, Second string // scripts
}

func (e *DuplicateAppError) Error() string {
	return fmt.Sprintf("applications %s and %s both stage as %q", e.First, e.Second, e.Name)
}

// checkUniqueNames returns a DuplicateAppError for the first repeated name.
func checkUniqueNames(apps []Application) error {
	seen := make(map[string]string, len(apps))
	for _, app := range apps {
		if first, ok := seen[app.Name]; ok {
			return &DuplicateAppError{Name: app.Name, First: first, Second: app.Script}
		}
		seen[app.Name] = app.Script
	}
	return nil
}
