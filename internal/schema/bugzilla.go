package schema

type bugzillaAdapter struct {
	*table
}

// Bugzilla builds the adapter for Bugzilla trackers. Labels are the texts shown in the
// "Activity" table of show_activity.cgi.
func Bugzilla() Adapter {
	attrs := baseAttributes(map[string][]string{
		"summary":     {"Summary"},
		"priority":    {"Priority"},
		"assigned_to": {"Assignee", "AssignedTo"},
		"status":      {"status", "Status"},
		"resolution":  {"resolution", "Resolution"},
		"type":        {"Severity"},
	})
	attrs = append(attrs,
		Attribute{Name: "alias", Type: TypeString, Labels: []string{"Alias"}},
		Attribute{Name: "delta_ts", Type: TypeTime},
		Attribute{Name: "reporter_accessible", Type: TypeString, Labels: []string{"Reporter accessible"}},
		Attribute{Name: "cclist_accessible", Type: TypeString, Labels: []string{"CC list accessible"}},
		Attribute{Name: "classification_id", Type: TypeString},
		Attribute{Name: "classification", Type: TypeString},
		Attribute{Name: "product", Type: TypeString, Labels: []string{"Product"}},
		Attribute{Name: "component", Type: TypeString, Labels: []string{"Component"}},
		Attribute{Name: "version", Type: TypeString, Labels: []string{"Version"}},
		Attribute{Name: "rep_platform", Type: TypeString, Labels: []string{"Hardware"}},
		Attribute{Name: "op_sys", Type: TypeString, Labels: []string{"OS"}},
		Attribute{Name: "dup_id", Type: TypeInt},
		Attribute{Name: "bug_file_loc", Type: TypeString, Labels: []string{"URL"}},
		Attribute{Name: "status_whiteboard", Type: TypeString, Labels: []string{"Whiteboard"}},
		Attribute{Name: "target_milestone", Type: TypeString, Labels: []string{"Target Milestone"}},
		Attribute{Name: "votes", Type: TypeInt, Labels: []string{"Votes"}},
		Attribute{Name: "everconfirmed", Type: TypeString, Labels: []string{"Ever confirmed"}},
		Attribute{Name: "qa_contact", Type: TypeString, Labels: []string{"QA Contact"}},
		Attribute{Name: "estimated_time", Type: TypeString},
		Attribute{Name: "remaining_time", Type: TypeString},
		Attribute{Name: "actual_time", Type: TypeString},
		Attribute{Name: "deadline", Type: TypeTime},
		Attribute{Name: "keywords", Type: TypeString, Labels: []string{"Keywords"}},
		Attribute{Name: "flag", Type: TypeString},
		Attribute{Name: "cc", Type: TypeString, Labels: []string{"CC"}},
		Attribute{Name: "group_bugzilla", Type: TypeString},
	)
	return &bugzillaAdapter{table: newTable(KindBugzilla, "issues_log_bugzilla", "issues_ext_bugzilla", attrs)}
}
