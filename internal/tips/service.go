package tips

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/language"

	"github.com/sundayezeilo/tips/internal/errx"
)

const (
	MaxConnectionIDLength = 255
	MaxTitleLength        = 200
	MaxBodyLength         = 8000
	MaxAttributionLength  = 200
	MaxConnectionsPerList = 100
)

// Repository is the subset of *Store the service depends on.
type Repository interface {
	AddTip(ctx context.Context, tip NewTip) (int64, error)
	AddEdit(ctx context.Context, parentID int64, tip NewTip) (int64, error)
	ApproveTip(ctx context.Context, tipID int64, approved bool) error
	DeleteTip(ctx context.Context, tipID int64) error
	RevertEdit(ctx context.Context, tipID int64) error
	GetTips(ctx context.Context, connectionIDs []string, includeUnapproved bool) ([]Tip, error)
	GetUnapprovedTips(ctx context.Context) ([]Tip, error)
	GetTip(ctx context.Context, tipID int64) (Tip, error)
}

// SubmitRequest carries a new tip or an edit. ConnectionID is ignored for
// edits; the edit inherits it from the parent.
type SubmitRequest struct {
	ConnectionID string
	Title        string
	Body         string
	Attribution  string
	Language     string
}

// Service defines the moderation workflow on top of the tip store.
type Service interface {
	Submit(ctx context.Context, req SubmitRequest) (int64, error)
	SubmitEdit(ctx context.Context, parentID int64, req SubmitRequest) (int64, error)
	Approve(ctx context.Context, tipID int64) error
	Reject(ctx context.Context, tipID int64) error
	Delete(ctx context.Context, tipID int64) error
	Revert(ctx context.Context, tipID int64) error
	Get(ctx context.Context, tipID int64) (Tip, error)
	List(ctx context.Context, connectionIDs []string, includeUnapproved bool) ([]Tip, error)
	Pending(ctx context.Context) ([]Tip, error)
}

type service struct {
	repo Repository
}

// NewService creates a new service instance.
func NewService(repo Repository) Service {
	return &service{repo: repo}
}

// Submit validates and stores a new top-level tip awaiting moderation.
func (s *service) Submit(ctx context.Context, req SubmitRequest) (int64, error) {
	const op = "tips.service.Submit"

	tip, err := normalize(req)
	if err != nil {
		return 0, errx.E(op, errx.Invalid, err)
	}
	if err := validateConnectionID(tip.ConnectionID); err != nil {
		return 0, errx.E(op, errx.Invalid, err)
	}

	id, err := s.repo.AddTip(ctx, tip)
	if err != nil {
		return 0, errx.Wrap(op, err)
	}
	return id, nil
}

// SubmitEdit stores a revision of parentID. The parent check and the insert
// run in one store transaction: a missing parent is NotFound, a deleted or
// superseded one is Conflict, and the edit is attached to the parent's
// connection.
func (s *service) SubmitEdit(ctx context.Context, parentID int64, req SubmitRequest) (int64, error) {
	const op = "tips.service.SubmitEdit"

	if err := validateID(parentID); err != nil {
		return 0, errx.E(op, errx.Invalid, err)
	}
	tip, err := normalize(req)
	if err != nil {
		return 0, errx.E(op, errx.Invalid, err)
	}
	tip.ConnectionID = ""

	id, err := s.repo.AddEdit(ctx, parentID, tip)
	if err != nil {
		return 0, errx.Wrap(op, err)
	}
	return id, nil
}

func (s *service) Approve(ctx context.Context, tipID int64) error {
	const op = "tips.service.Approve"

	if err := validateID(tipID); err != nil {
		return errx.E(op, errx.Invalid, err)
	}
	if err := s.repo.ApproveTip(ctx, tipID, true); err != nil {
		return errx.Wrap(op, err)
	}
	return nil
}

// Reject clears the approved flag. It never restores a superseded parent.
func (s *service) Reject(ctx context.Context, tipID int64) error {
	const op = "tips.service.Reject"

	if err := validateID(tipID); err != nil {
		return errx.E(op, errx.Invalid, err)
	}
	if err := s.repo.ApproveTip(ctx, tipID, false); err != nil {
		return errx.Wrap(op, err)
	}
	return nil
}

func (s *service) Delete(ctx context.Context, tipID int64) error {
	const op = "tips.service.Delete"

	if err := validateID(tipID); err != nil {
		return errx.E(op, errx.Invalid, err)
	}
	if err := s.repo.DeleteTip(ctx, tipID); err != nil {
		return errx.Wrap(op, err)
	}
	return nil
}

func (s *service) Revert(ctx context.Context, tipID int64) error {
	const op = "tips.service.Revert"

	if err := validateID(tipID); err != nil {
		return errx.E(op, errx.Invalid, err)
	}
	if err := s.repo.RevertEdit(ctx, tipID); err != nil {
		return errx.Wrap(op, err)
	}
	return nil
}

func (s *service) Get(ctx context.Context, tipID int64) (Tip, error) {
	const op = "tips.service.Get"

	if err := validateID(tipID); err != nil {
		return Tip{}, errx.E(op, errx.Invalid, err)
	}
	tip, err := s.repo.GetTip(ctx, tipID)
	if err != nil {
		return Tip{}, errx.Wrap(op, err)
	}
	return tip, nil
}

// List returns the visible tips of the given connections. Blank and repeated
// ids are dropped before querying.
func (s *service) List(ctx context.Context, connectionIDs []string, includeUnapproved bool) ([]Tip, error) {
	const op = "tips.service.List"

	ids := make([]string, 0, min(len(connectionIDs), MaxConnectionsPerList))
	seen := make(map[string]struct{}, cap(ids))
	for _, id := range connectionIDs {
		id = strings.TrimSpace(id)
		if _, dup := seen[id]; dup || id == "" {
			continue
		}
		if err := validateConnectionID(id); err != nil {
			return nil, errx.E(op, errx.Invalid, err)
		}
		if len(ids) == MaxConnectionsPerList {
			return nil, errx.E(op, errx.Invalid,
				fmt.Errorf("too many connection ids (max %d)", MaxConnectionsPerList))
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	tips, err := s.repo.GetTips(ctx, ids, includeUnapproved)
	if err != nil {
		return nil, errx.Wrap(op, err)
	}
	return tips, nil
}

func (s *service) Pending(ctx context.Context) ([]Tip, error) {
	const op = "tips.service.Pending"

	tips, err := s.repo.GetUnapprovedTips(ctx)
	if err != nil {
		return nil, errx.Wrap(op, err)
	}
	return tips, nil
}

// normalize trims the request and checks every field except the connection
// id, which edits take from their parent.
func normalize(req SubmitRequest) (NewTip, error) {
	tip := NewTip{
		ConnectionID: strings.TrimSpace(req.ConnectionID),
		Title:        strings.TrimSpace(req.Title),
		Body:         strings.TrimSpace(req.Body),
		Attribution:  strings.TrimSpace(req.Attribution),
		Language:     strings.TrimSpace(req.Language),
	}

	if tip.Body == "" {
		return NewTip{}, errors.New("body is required")
	}
	if err := checkLength("body", tip.Body, MaxBodyLength); err != nil {
		return NewTip{}, err
	}
	if err := checkLength("title", tip.Title, MaxTitleLength); err != nil {
		return NewTip{}, err
	}
	if err := checkLength("attribution", tip.Attribution, MaxAttributionLength); err != nil {
		return NewTip{}, err
	}

	if tip.Language != "" {
		tag, err := language.Parse(tip.Language)
		if err != nil {
			return NewTip{}, fmt.Errorf("language %q is not a valid language tag", tip.Language)
		}
		tip.Language = tag.String()
	}
	return tip, nil
}

func validateConnectionID(id string) error {
	if id == "" {
		return errors.New("connection_id is required")
	}
	return checkLength("connection_id", id, MaxConnectionIDLength)
}

func validateID(id int64) error {
	if id <= 0 {
		return errors.New("tip id must be positive")
	}
	return nil
}

func checkLength(field, v string, limit int) error {
	if !utf8.ValidString(v) {
		return fmt.Errorf("%s is not valid UTF-8", field)
	}
	if utf8.RuneCountInString(v) > limit {
		return fmt.Errorf("%s too long (max %d characters)", field, limit)
	}
	return nil
}
