package tracker

// DefaultClasses seeds the local store on first run.
var DefaultClasses = []Class{
	{ID: "1", Name: "English", Color: "#3B82F6"},
	{ID: "2", Name: "History", Color: "#10B981"},
	{ID: "3", Name: "Calculus", Color: "#F59E0B"},
	{ID: "4", Name: "TOK", Color: "#8B5CF6"},
	{ID: "5", Name: "Personal", Color: "#6B7280"},
	{ID: "6", Name: "Yearbook", Color: "#EC4899"},
	{ID: "7", Name: "Psychology", Color: "#06B6D4"},
	{ID: "8", Name: "Biology", Color: "#84CC16"},
	{ID: "9", Name: "Spanish", Color: "#F97316"},
}
