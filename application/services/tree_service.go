package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/heirloom-app/heirloom/application/ports"
	"github.com/heirloom-app/heirloom/domain/tree"
	apperrors "github.com/heirloom-app/heirloom/pkg/errors"
	"github.com/heirloom-app/heirloom/pkg/utils"
)

// TreeService implements member CRUD, moves, and spouse pairing for a space.
// It is the single place where spouse symmetry is enforced.
type TreeService struct {
	members   ports.MemberRepository
	relations ports.RelationRepository
	events    ports.EventPublisher
	logger    *zap.Logger
}

// NewTreeService creates a new tree service
func NewTreeService(
	members ports.MemberRepository,
	relations ports.RelationRepository,
	events ports.EventPublisher,
	logger *zap.Logger,
) *TreeService {
	return &TreeService{
		members:   members,
		relations: relations,
		events:    events,
		logger:    logger,
	}
}

// CreateMemberInput carries the fields accepted when creating a member.
type CreateMemberInput struct {
	FirstName         string
	MiddleName        string
	LastName          string
	NickName          string
	DOB               string
	IsDeceased        bool
	DateOfDeath       string
	BirthLocation     string
	ResidenceLocation string
	Email             string
	Phone             string
	Hobbies           []string
	SpouseID          string
	ProfilePictureURL string
}

// UpdateMemberInput carries PATCH semantics: nil fields are left unchanged.
type UpdateMemberInput struct {
	FirstName         *string
	MiddleName        *string
	LastName          *string
	NickName          *string
	DOB               *string
	IsDeceased        *bool
	DateOfDeath       *string
	BirthLocation     *string
	ResidenceLocation *string
	Email             *string
	Phone             *string
	Hobbies           *[]string
	SpouseID          *string
	ProfilePictureURL *string
}

// GetTree loads a space's members and relations and assembles the forest.
func (s *TreeService) GetTree(ctx context.Context, spaceID string) (*tree.Tree, error) {
	members, err := s.members.ListBySpace(ctx, spaceID)
	if err != nil {
		return nil, apperrors.Wrap(err, "load members")
	}

	relations, err := s.relations.ListBySpace(ctx, spaceID)
	if err != nil {
		return nil, apperrors.Wrap(err, "load relations")
	}

	assembled, err := tree.Assemble(members, relations)
	if err != nil {
		s.logger.Error("Tree assembly failed",
			zap.String("spaceID", spaceID),
			zap.Error(err),
		)
		return nil, err
	}

	return assembled, nil
}

// GetMember loads a single member by id.
func (s *TreeService) GetMember(ctx context.Context, spaceID, memberID string) (*tree.Member, error) {
	return s.members.GetByID(ctx, spaceID, memberID)
}

// CreateMember validates and persists a new member.
func (s *TreeService) CreateMember(ctx context.Context, spaceID, actor string, in CreateMemberInput) (*tree.Member, error) {
	if err := validateDates(in.DOB, in.DateOfDeath); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	m := &tree.Member{
		ID:                uuid.New().String(),
		SpaceID:           spaceID,
		FirstName:         in.FirstName,
		MiddleName:        in.MiddleName,
		LastName:          in.LastName,
		NickName:          in.NickName,
		DOB:               in.DOB,
		IsDeceased:        in.IsDeceased,
		DateOfDeath:       in.DateOfDeath,
		BirthLocation:     in.BirthLocation,
		ResidenceLocation: in.ResidenceLocation,
		Email:             in.Email,
		Phone:             in.Phone,
		Hobbies:           in.Hobbies,
		SpouseID:          in.SpouseID,
		ProfilePictureURL: in.ProfilePictureURL,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	m.RefreshDOBTS()

	if err := s.members.Create(ctx, m); err != nil {
		return nil, err
	}

	s.publish(ctx, ports.EventMemberCreated, spaceID, m.ID, actor)
	return m, nil
}

// UpdateMember applies a partial update to an existing member.
func (s *TreeService) UpdateMember(ctx context.Context, spaceID, memberID, actor string, in UpdateMemberInput) (*tree.Member, error) {
	m, err := s.members.GetByID(ctx, spaceID, memberID)
	if err != nil {
		return nil, err
	}

	applyString := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	applyString(&m.FirstName, in.FirstName)
	applyString(&m.MiddleName, in.MiddleName)
	applyString(&m.LastName, in.LastName)
	applyString(&m.NickName, in.NickName)
	applyString(&m.DOB, in.DOB)
	applyString(&m.DateOfDeath, in.DateOfDeath)
	applyString(&m.BirthLocation, in.BirthLocation)
	applyString(&m.ResidenceLocation, in.ResidenceLocation)
	applyString(&m.Email, in.Email)
	applyString(&m.Phone, in.Phone)
	applyString(&m.SpouseID, in.SpouseID)
	applyString(&m.ProfilePictureURL, in.ProfilePictureURL)
	if in.IsDeceased != nil {
		m.IsDeceased = *in.IsDeceased
	}
	if in.Hobbies != nil {
		m.Hobbies = *in.Hobbies
	}

	if err := validateDates(m.DOB, m.DateOfDeath); err != nil {
		return nil, err
	}
	m.RefreshDOBTS()
	m.UpdatedAt = time.Now().UTC()

	if err := s.members.Update(ctx, m); err != nil {
		return nil, err
	}

	s.publish(ctx, ports.EventMemberUpdated, spaceID, m.ID, actor)
	return m, nil
}

// DeleteMember removes a member without children, along with its own parent
// relation and any spouse back-reference pointing at it.
func (s *TreeService) DeleteMember(ctx context.Context, spaceID, memberID, actor string) error {
	m, err := s.members.GetByID(ctx, spaceID, memberID)
	if err != nil {
		return err
	}

	relations, err := s.relations.ListBySpace(ctx, spaceID)
	if err != nil {
		return apperrors.Wrap(err, "load relations")
	}
	for _, rel := range relations {
		if rel.ParentID != nil && *rel.ParentID == memberID {
			return apperrors.NewStructureError("cannot delete: member has children")
		}
	}

	if err := s.relations.DeleteByChild(ctx, spaceID, memberID); err != nil {
		return apperrors.Wrap(err, "delete relation")
	}

	// Clear the partner's back-reference so the pairing doesn't dangle.
	if m.SpouseID != "" {
		if partner, perr := s.members.GetByID(ctx, spaceID, m.SpouseID); perr == nil && partner.SpouseID == memberID {
			partner.SpouseID = ""
			if uerr := s.members.Update(ctx, partner); uerr != nil {
				return apperrors.Wrap(uerr, "unlink spouse")
			}
		}
	}

	if err := s.members.Delete(ctx, spaceID, memberID); err != nil {
		return err
	}

	s.publish(ctx, ports.EventMemberDeleted, spaceID, memberID, actor)
	return nil
}

// Move reparents a child, or makes it a root when newParentID is nil. A move
// that would make a member its own ancestor is rejected before any write.
func (s *TreeService) Move(ctx context.Context, spaceID, actor, childID string, newParentID *string) error {
	if _, err := s.members.GetByID(ctx, spaceID, childID); err != nil {
		return err
	}

	if newParentID != nil {
		if *newParentID == childID {
			return apperrors.NewStructureError("member cannot be its own parent")
		}
		if _, err := s.members.GetByID(ctx, spaceID, *newParentID); err != nil {
			return err
		}

		relations, err := s.relations.ListBySpace(ctx, spaceID)
		if err != nil {
			return apperrors.Wrap(err, "load relations")
		}
		if wouldCreateCycle(relations, childID, *newParentID) {
			return apperrors.NewStructureError("move would make member its own ancestor")
		}
	}

	if err := s.relations.SetParent(ctx, spaceID, childID, newParentID); err != nil {
		return apperrors.Wrap(err, "set parent")
	}

	s.publish(ctx, ports.EventMemberMoved, spaceID, childID, actor)
	return nil
}

// SetSpouse links or unlinks a spouse pairing, keeping both back-references
// symmetric. Any prior pairing on either side is dissolved first.
func (s *TreeService) SetSpouse(ctx context.Context, spaceID, memberID, actor string, spouseID *string) error {
	m, err := s.members.GetByID(ctx, spaceID, memberID)
	if err != nil {
		return err
	}

	unlink := func(id, expectedPartner string) error {
		partner, perr := s.members.GetByID(ctx, spaceID, id)
		if perr != nil {
			if apperrors.IsNotFound(perr) {
				return nil
			}
			return perr
		}
		if partner.SpouseID != expectedPartner {
			return nil
		}
		partner.SpouseID = ""
		return s.members.Update(ctx, partner)
	}

	if spouseID == nil || *spouseID == "" {
		if m.SpouseID != "" {
			if err := unlink(m.SpouseID, memberID); err != nil {
				return err
			}
		}
		m.SpouseID = ""
		if err := s.members.Update(ctx, m); err != nil {
			return err
		}
		s.publish(ctx, ports.EventSpouseLinked, spaceID, memberID, actor)
		return nil
	}

	if *spouseID == memberID {
		return apperrors.NewValidationError("member cannot be their own spouse")
	}

	partner, err := s.members.GetByID(ctx, spaceID, *spouseID)
	if err != nil {
		return err
	}

	// Dissolve prior pairings on both sides before relinking.
	if m.SpouseID != "" && m.SpouseID != partner.ID {
		if err := unlink(m.SpouseID, memberID); err != nil {
			return err
		}
	}
	if partner.SpouseID != "" && partner.SpouseID != memberID {
		if err := unlink(partner.SpouseID, partner.ID); err != nil {
			return err
		}
	}

	m.SpouseID = partner.ID
	partner.SpouseID = memberID
	if err := s.members.Update(ctx, m); err != nil {
		return err
	}
	if err := s.members.Update(ctx, partner); err != nil {
		return err
	}

	s.publish(ctx, ports.EventSpouseLinked, spaceID, memberID, actor)
	return nil
}

// wouldCreateCycle walks the ancestor chain of the prospective parent; the
// move is cyclic when the child appears along it.
func wouldCreateCycle(relations []tree.Relation, childID, newParentID string) bool {
	parentOf := make(map[string]string, len(relations))
	for _, rel := range relations {
		if rel.ParentID != nil {
			parentOf[rel.ChildID] = *rel.ParentID
		}
	}

	walked := map[string]bool{}
	for id := newParentID; id != ""; id = parentOf[id] {
		if id == childID {
			return true
		}
		if walked[id] {
			// Pre-existing cycle upstream; the move itself is safe only
			// if the child is not on it, which the loop already checked.
			return false
		}
		walked[id] = true
	}
	return false
}

func (s *TreeService) publish(ctx context.Context, eventType, spaceID, entityID, actor string) {
	if s.events == nil {
		return
	}
	evt := ports.MutationEvent{Type: eventType, SpaceID: spaceID, EntityID: entityID, Actor: actor}
	if err := s.events.Publish(ctx, evt); err != nil {
		s.logger.Warn("Failed to publish mutation event",
			zap.String("type", eventType),
			zap.String("spaceID", spaceID),
			zap.Error(err),
		)
	}
}

// validateDates enforces that display dates parse, are not in the future,
// and that a date of death falls after the date of birth. Unparseable
// strings are tolerated at this layer, matching the storage model.
func validateDates(dob, dod string) error {
	now := time.Now().UTC()

	var dobT time.Time
	dobOK := false
	if dob != "" {
		if t, err := utils.ParseDisplayDate(dob); err == nil {
			if t.After(now) {
				return apperrors.NewValidationError("dob cannot be in the future")
			}
			dobT, dobOK = t, true
		}
	}

	if dod != "" {
		if t, err := utils.ParseDisplayDate(dod); err == nil {
			if t.After(now) {
				return apperrors.NewValidationError("date_of_death cannot be in the future")
			}
			if dobOK && !t.After(dobT) {
				return apperrors.NewValidationError("date_of_death must be later than dob")
			}
		}
	}

	return nil
}
