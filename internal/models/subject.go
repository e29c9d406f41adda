package models

// Subject is a course-level manifest node carrying its faculty/year/term context.
type Subject struct {
	ID      string      `json:"id"`
	Name    string      `json:"name"`
	Faculty string      `json:"faculty"`
	Year    int         `json:"year"`
	Term    int         `json:"term"`
	Quizzes []QuizEntry `json:"quizzes"`
}

// QuizEntry points at one quiz file. ID always equals the file's meta.id.
type QuizEntry struct {
	ID            string         `json:"id"`
	Title         string         `json:"title"`
	Path          string         `json:"path"`
	QuestionCount int            `json:"questionCount"`
	QuestionTypes []QuestionType `json:"questionTypes"`
	Description   string         `json:"description,omitempty"`
	Author        string         `json:"author,omitempty"`
	Source        string         `json:"source,omitempty"`
}

// Manifest is the document published at quiz-manifest.json.
type Manifest struct {
	GeneratedAt string    `json:"generatedAt"`
	DataRoot    string    `json:"dataRoot"`
	Subjects    []Subject `json:"subjects"`
}

// QuizPaths returns every quiz URL path referenced by the manifest, first occurrence order, no repeats.
func (m Manifest) QuizPaths() []string {
	seen := make(map[string]struct{})
	paths := make([]string, 0)
	for _, subject := range m.Subjects {
		for _, quiz := range subject.Quizzes {
			if quiz.Path == "" {
				continue
			}
			if _, ok := seen[quiz.Path]; ok {
				continue
			}
			seen[quiz.Path] = struct{}{}
			paths = append(paths, quiz.Path)
		}
	}
	return paths
}
