package upstream

// TermInfo is one term as listed by the upstream system.
type TermInfo struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// SubjectInfo is one subject (department grouping) within a term.
type SubjectInfo struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// MeetingBlock is one scheduled meeting of a course section.
type MeetingBlock struct {
	Days      string `json:"meetingDays"`
	BeginTime string `json:"beginTime"`
	EndTime   string `json:"endTime"`
	Building  string `json:"building"`
	Room      string `json:"room"`
}

// CourseRecord is one course section as returned by the upstream search.
type CourseRecord struct {
	CRN            string         `json:"courseReferenceNumber"`
	Subject        string         `json:"subject"`
	CourseNumber   string         `json:"courseNumber"`
	Title          string         `json:"courseTitle"`
	Instructor     string         `json:"instructorName"`
	Enrollment     int            `json:"enrollment"`
	MaxEnrollment  int            `json:"maximumEnrollment"`
	WaitCount      int            `json:"waitCount"`
	WaitCapacity   int            `json:"waitCapacity"`
	CreditHours    float64        `json:"creditHours"`
	OpenSection    bool           `json:"openSection"`
	MeetingBlocks  []MeetingBlock `json:"meetingsFaculty,omitempty"`
}

// searchEnvelope is the upstream search response wrapper. The success flag
// is authoritative: a 200 with success=false is still a failed call.
type searchEnvelope struct {
	Success    bool           `json:"success"`
	TotalCount int            `json:"totalCount"`
	Data       []CourseRecord `json:"data"`
}

type listEnvelope[T any] struct {
	Success bool `json:"success"`
	Data    []T  `json:"data"`
}
