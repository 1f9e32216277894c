package schema

type jiraAdapter struct {
	*table
}

// Jira builds the adapter for Jira trackers. Labels are the field names of the changelog
// returned with an issue.
func Jira() Adapter {
	attrs := baseAttributes(map[string][]string{
		"summary":     {"Summary"},
		"priority":    {"Priority"},
		"resolution":  {"Resolution"},
		"status":      {"Status"},
		"assigned_to": {"Assignee"},
		"type":        {"Issue Type"},
		"description": {"Description"},
	})
	attrs = append(attrs,
		Attribute{Name: "issue_key", Type: TypeString},
		Attribute{Name: "link", Type: TypeString, Labels: []string{"Link"}},
		Attribute{Name: "environment", Type: TypeString, Labels: []string{"Environment"}},
		Attribute{Name: "security", Type: TypeString, Labels: []string{"Security"}},
		Attribute{Name: "updated", Type: TypeTime},
		Attribute{Name: "version", Type: TypeString, Labels: []string{"Fix Version/s"}},
		Attribute{Name: "component", Type: TypeString, Labels: []string{"Component/s"}},
		Attribute{Name: "votes", Type: TypeInt},
		Attribute{Name: "project", Type: TypeString},
		Attribute{Name: "project_id", Type: TypeInt},
		Attribute{Name: "project_key", Type: TypeString},
	)
	return &jiraAdapter{table: newTable(KindJira, "issues_log_jira", "issues_ext_jira", attrs)}
}
