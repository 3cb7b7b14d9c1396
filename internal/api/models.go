package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/phrazzld/tasktrail-api/internal/api/shared"
	"github.com/phrazzld/tasktrail-api/internal/domain"
	"github.com/phrazzld/tasktrail-api/internal/service"
)

// defaultActivityLimit is the page size of activity listings.
const defaultActivityLimit = 10

// CreateTaskRequest defines the payload of POST /api/tasks.
type CreateTaskRequest struct {
	Title       string     `json:"title"       validate:"required,max=200"`
	Description *string    `json:"description" validate:"omitnil,max=5000"`
	Status      string     `json:"status"      validate:"omitempty,oneof=todo in_progress done"`
	Priority    string     `json:"priority"    validate:"omitempty,oneof=low medium high"`
	DueDate     *time.Time `json:"dueDate"`
	ProjectID   string     `json:"projectId"   validate:"required,uuid"`
	AssigneeID  string     `json:"assigneeId"  validate:"omitempty,uuid"`
	TagIDs      []string   `json:"tagIds"      validate:"omitempty,dive,uuid"`
}

func (req CreateTaskRequest) toInput() service.CreateTaskInput {
	in := service.CreateTaskInput{
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		Status:      domain.TaskStatus(req.Status),
		Priority:    domain.TaskPriority(req.Priority),
		DueDate:     req.DueDate,
		ProjectID:   uuid.MustParse(req.ProjectID),
		TagIDs:      parseIDs(req.TagIDs),
	}
	if req.AssigneeID != "" {
		id := uuid.MustParse(req.AssigneeID)
		in.AssigneeID = &id
	}
	return in
}

// NullableString distinguishes a JSON field that is absent from one that is
// present, including an explicit null.
type NullableString struct {
	Set   bool
	Value *string
}

// UnmarshalJSON records that the field was present.
func (n *NullableString) UnmarshalJSON(data []byte) error {
	n.Set = true
	if bytes.Equal(data, []byte("null")) {
		n.Value = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	n.Value = &s
	return nil
}

// NullableTime is the time counterpart of NullableString.
type NullableTime struct {
	Set   bool
	Value *time.Time
}

// UnmarshalJSON records that the field was present.
func (n *NullableTime) UnmarshalJSON(data []byte) error {
	n.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		n.Value = nil
		return nil
	}
	var t time.Time
	if err := json.Unmarshal(data, &t); err != nil {
		return err
	}
	n.Value = &t
	return nil
}

// maxDescriptionLength bounds task descriptions, in characters.
const maxDescriptionLength = 5000

// UpdateTaskRequest defines the payload of PUT /api/tasks/{id}. Absent
// fields are left unchanged. description and dueDate set to null clear the
// field; assigneeId set to null or "" unassigns.
type UpdateTaskRequest struct {
	Title       *string        `json:"title"       validate:"omitnil,min=1,max=200"`
	Description NullableString `json:"description"`
	Status      *string        `json:"status"      validate:"omitnil,oneof=todo in_progress done"`
	Priority    *string        `json:"priority"    validate:"omitnil,oneof=low medium high"`
	DueDate     NullableTime   `json:"dueDate"`
	AssigneeID  NullableString `json:"assigneeId"`
	TagIDs      *[]string      `json:"tagIds"      validate:"omitnil,dive,uuid"`
}

// Validate runs the struct validator, then checks the assignee id.
func (req UpdateTaskRequest) Validate() error {
	if err := shared.ValidateStruct(req); err != nil {
		return err
	}
	if req.AssigneeID.Value != nil && *req.AssigneeID.Value != "" {
		if _, err := uuid.Parse(*req.AssigneeID.Value); err != nil {
			return domain.NewValidationError("assigneeId", "must be a valid UUID", domain.ErrInvalidID)
		}
	}
	if req.Title != nil && strings.TrimSpace(*req.Title) == "" {
		return domain.NewValidationError("title", "cannot be blank", domain.ErrValidation)
	}
	if req.Description.Value != nil && utf8.RuneCountInString(*req.Description.Value) > maxDescriptionLength {
		return domain.NewValidationError("description",
			"must be at most "+strconv.Itoa(maxDescriptionLength)+" characters", domain.ErrValidation)
	}
	return nil
}

func (req UpdateTaskRequest) toInput() service.UpdateTaskInput {
	in := service.UpdateTaskInput{
		Description:      req.Description.Value,
		ClearDescription: req.Description.Set && req.Description.Value == nil,
		DueDate:          req.DueDate.Value,
		ClearDueDate:     req.DueDate.Set && req.DueDate.Value == nil,
	}
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		in.Title = &title
	}
	if req.Status != nil {
		status := domain.TaskStatus(*req.Status)
		in.Status = &status
	}
	if req.Priority != nil {
		priority := domain.TaskPriority(*req.Priority)
		in.Priority = &priority
	}
	if req.AssigneeID.Set {
		if req.AssigneeID.Value == nil || *req.AssigneeID.Value == "" {
			in.ClearAssignee = true
		} else {
			id := uuid.MustParse(*req.AssigneeID.Value)
			in.AssigneeID = &id
		}
	}
	if req.TagIDs != nil {
		ids := parseIDs(*req.TagIDs)
		in.TagIDs = &ids
	}
	return in
}

// ListTasksQuery holds the query parameters of GET /api/tasks.
type ListTasksQuery struct {
	Status      string     `json:"status"      validate:"omitempty,oneof=todo in_progress done"`
	Priority    string     `json:"priority"    validate:"omitempty,oneof=low medium high"`
	AssigneeID  string     `json:"assigneeId"  validate:"omitempty,uuid"`
	ProjectID   string     `json:"projectId"   validate:"omitempty,uuid"`
	Search      string     `json:"search"      validate:"max=200"`
	DueDateFrom *time.Time `json:"dueDateFrom"`
	DueDateTo   *time.Time `json:"dueDateTo"`
	Page        int        `json:"page"        validate:"gte=0"`
	Limit       int        `json:"limit"       validate:"gte=0"`
}

func parseListTasksQuery(r *http.Request) (ListTasksQuery, error) {
	q := r.URL.Query()
	out := ListTasksQuery{
		Status:     q.Get("status"),
		Priority:   q.Get("priority"),
		AssigneeID: q.Get("assigneeId"),
		ProjectID:  q.Get("projectId"),
		Search:     strings.TrimSpace(q.Get("search")),
	}
	var err error
	if out.DueDateFrom, err = queryTime(q.Get("dueDateFrom"), "dueDateFrom"); err != nil {
		return out, err
	}
	if out.DueDateTo, err = queryTime(q.Get("dueDateTo"), "dueDateTo"); err != nil {
		return out, err
	}
	if out.Page, out.Limit, err = pageParams(r); err != nil {
		return out, err
	}
	return out, shared.ValidateStruct(out)
}

func (q ListTasksQuery) filter() service.TaskFilter {
	f := service.TaskFilter{
		Search:      q.Search,
		DueDateFrom: q.DueDateFrom,
		DueDateTo:   q.DueDateTo,
	}
	if q.Status != "" {
		s := domain.TaskStatus(q.Status)
		f.Status = &s
	}
	if q.Priority != "" {
		p := domain.TaskPriority(q.Priority)
		f.Priority = &p
	}
	if q.AssigneeID != "" {
		id := uuid.MustParse(q.AssigneeID)
		f.AssigneeID = &id
	}
	if q.ProjectID != "" {
		id := uuid.MustParse(q.ProjectID)
		f.ProjectID = &id
	}
	return f
}

// ListActivitiesQuery holds the query parameters of GET /api/activities.
type ListActivitiesQuery struct {
	UserID    string     `json:"userId"    validate:"omitempty,uuid"`
	TaskID    string     `json:"taskId"    validate:"omitempty,uuid"`
	Action    string     `json:"action"    validate:"omitempty,oneof=created updated deleted tag_added tag_removed"`
	StartDate *time.Time `json:"startDate"`
	EndDate   *time.Time `json:"endDate"`
	Page      int        `json:"page"      validate:"gte=0"`
	Limit     int        `json:"limit"     validate:"gte=0"`
}

func parseListActivitiesQuery(r *http.Request) (ListActivitiesQuery, error) {
	q := r.URL.Query()
	out := ListActivitiesQuery{
		UserID: q.Get("userId"),
		TaskID: q.Get("taskId"),
		Action: q.Get("action"),
	}
	var err error
	if out.StartDate, err = queryTime(q.Get("startDate"), "startDate"); err != nil {
		return out, err
	}
	if out.EndDate, err = queryTime(q.Get("endDate"), "endDate"); err != nil {
		return out, err
	}
	if out.Page, out.Limit, err = pageParams(r); err != nil {
		return out, err
	}
	if out.Limit == 0 {
		out.Limit = defaultActivityLimit
	}
	return out, shared.ValidateStruct(out)
}

func (q ListActivitiesQuery) filter() service.ActivityFilter {
	f := service.ActivityFilter{
		StartDate: q.StartDate,
		EndDate:   q.EndDate,
	}
	if q.UserID != "" {
		id := uuid.MustParse(q.UserID)
		f.UserID = &id
	}
	if q.TaskID != "" {
		id := uuid.MustParse(q.TaskID)
		f.TaskID = &id
	}
	if q.Action != "" {
		a := domain.ActivityAction(q.Action)
		f.Action = &a
	}
	return f
}

// DenormalizedUpdateRequest defines the payload of
// PATCH /api/activities/denormalized.
type DenormalizedUpdateRequest struct {
	TaskID    string `json:"taskId"    validate:"required_with=TaskTitle,omitempty,uuid"`
	TaskTitle string `json:"taskTitle" validate:"required_with=TaskID,max=200"`
	UserID    string `json:"userId"    validate:"required_with=UserName,omitempty,uuid"`
	UserName  string `json:"userName"  validate:"required_with=UserID,max=200"`
}

// Validate requires at least one complete rename.
func (req DenormalizedUpdateRequest) Validate() error {
	if err := shared.ValidateStruct(req); err != nil {
		return err
	}
	if req.TaskID == "" && req.UserID == "" {
		return domain.NewValidationError("taskId", "or userId is required", domain.ErrValidation)
	}
	return nil
}

func (req DenormalizedUpdateRequest) toInput() service.DenormalizedUpdate {
	u := service.DenormalizedUpdate{
		TaskTitle: req.TaskTitle,
		UserName:  req.UserName,
	}
	if req.TaskID != "" {
		id := uuid.MustParse(req.TaskID)
		u.TaskID = &id
	}
	if req.UserID != "" {
		id := uuid.MustParse(req.UserID)
		u.UserID = &id
	}
	return u
}

// queryTime accepts RFC 3339 timestamps and plain dates (midnight UTC).
func queryTime(raw, name string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.DateOnly} {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, domain.NewValidationError(name, "must be an RFC 3339 timestamp or a YYYY-MM-DD date", domain.ErrInvalidFormat)
}

// pageParams parses page and limit. Absent values are returned as zero so
// the paginator applies its defaults.
func pageParams(r *http.Request) (page, limit int, err error) {
	if page, err = queryInt(r, "page"); err != nil {
		return 0, 0, err
	}
	if limit, err = queryInt(r, "limit"); err != nil {
		return 0, 0, err
	}
	return page, limit, nil
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, domain.NewValidationError(name, "must be a positive integer", domain.ErrInvalidFormat)
	}
	return n, nil
}

// parseIDs converts validated id strings.
func parseIDs(raw []string) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		out = append(out, uuid.MustParse(s))
	}
	return out
}
