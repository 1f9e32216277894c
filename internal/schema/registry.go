package schema

import (
	"fmt"
	"strings"

	"github.com/spec-kit/issuelog/internal/domain"
)

var registry = map[Kind]func() Adapter{
	KindBugzilla:      Bugzilla,
	KindJira:          Jira,
	KindTrac:          func() Adapter { return Generic(KindTrac) },
	KindTracWordPress: func() Adapter { return Generic(KindTracWordPress) },
}

var aliases = map[string]Kind{
	"bg":             KindBugzilla,
	"bugzilla":       KindBugzilla,
	"jira":           KindJira,
	"trac":           KindTrac,
	"trac_wordpress": KindTracWordPress,
	"trac-wordpress": KindTracWordPress,
}

// ParseKind normalises a backend name such as "bg" or "Jira".
func ParseKind(name string) (Kind, error) {
	kind, ok := aliases[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", fmt.Errorf("%w: %q", domain.ErrUnknownTrackerKind, name)
	}
	return kind, nil
}

// ForKind returns the adapter registered for a backend name.
func ForKind(name string) (Adapter, error) {
	kind, err := ParseKind(name)
	if err != nil {
		return nil, err
	}
	return registry[kind](), nil
}

// Kinds lists the registered tracker kinds.
func Kinds() []Kind {
	return []Kind{KindBugzilla, KindJira, KindTrac, KindTracWordPress}
}
