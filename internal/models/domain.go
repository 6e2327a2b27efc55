package models

import (
	"fmt"
	"strings"
)

// EntityType names the kind of entity a file asset is attached to.
type EntityType string

const (
	EntityWorkspaceLogo         EntityType = "WORKSPACE_LOGO"
	EntityProjectCover          EntityType = "PROJECT_COVER"
	EntityUserAvatar            EntityType = "USER_AVATAR"
	EntityUserCover             EntityType = "USER_COVER"
	EntityIssueAttachment       EntityType = "ISSUE_ATTACHMENT"
	EntityIssueDescription      EntityType = "ISSUE_DESCRIPTION"
	EntityPageDescription       EntityType = "PAGE_DESCRIPTION"
	EntityCommentDescription    EntityType = "COMMENT_DESCRIPTION"
	EntityDraftIssueDescription EntityType = "DRAFT_ISSUE_DESCRIPTION"
)

// OwnerKind is the tag of an OwnerRef.
type OwnerKind string

const (
	OwnerUnbound    OwnerKind = ""
	OwnerWorkspace  OwnerKind = "workspace"
	OwnerProject    OwnerKind = "project"
	OwnerUser       OwnerKind = "user"
	OwnerIssue      OwnerKind = "issue"
	OwnerPage       OwnerKind = "page"
	OwnerComment    OwnerKind = "comment"
	OwnerDraftIssue OwnerKind = "draft_issue"
)

// ScopeKind names an authorization scope checked by the permission oracle.
type ScopeKind string

const (
	ScopeUser      ScopeKind = "user"
	ScopeWorkspace ScopeKind = "workspace"
	ScopeProject   ScopeKind = "project"
)

// RebindSlot names the single-asset pointer an owner keeps for an entity type.
type RebindSlot string

const (
	SlotNone          RebindSlot = ""
	SlotWorkspaceLogo RebindSlot = "workspace_logo"
	SlotProjectCover  RebindSlot = "project_cover"
	SlotUserAvatar    RebindSlot = "user_avatar"
	SlotUserCover     RebindSlot = "user_cover"
)

// EntityBehavior is the per-entity-type row of the asset behavior table.
type EntityBehavior struct {
	Owner OwnerKind
	Slot  RebindSlot
	// UserScoped assets live outside any workspace and use the bare storage key form.
	UserScoped bool
	// StaticRedirect allows unauthenticated redirect delivery.
	StaticRedirect bool
	// Revalidate sniffs stored bytes again when the upload is confirmed.
	Revalidate bool
	// Activity emits an activity job on create, confirm and delete.
	Activity bool
}

var entityBehaviors = map[EntityType]EntityBehavior{
	EntityWorkspaceLogo:         {Owner: OwnerWorkspace, Slot: SlotWorkspaceLogo, StaticRedirect: true},
	EntityProjectCover:          {Owner: OwnerProject, Slot: SlotProjectCover, StaticRedirect: true},
	EntityUserAvatar:            {Owner: OwnerUser, Slot: SlotUserAvatar, UserScoped: true, StaticRedirect: true},
	EntityUserCover:             {Owner: OwnerUser, Slot: SlotUserCover, UserScoped: true, StaticRedirect: true},
	EntityIssueAttachment:       {Owner: OwnerIssue, Revalidate: true, Activity: true},
	EntityIssueDescription:      {Owner: OwnerIssue},
	EntityPageDescription:       {Owner: OwnerPage},
	EntityCommentDescription:    {Owner: OwnerComment},
	EntityDraftIssueDescription: {Owner: OwnerDraftIssue},
}

// ParseEntityType normalizes and validates an entity type.
func ParseEntityType(value string) (EntityType, error) {
	normalized := EntityType(strings.ToUpper(strings.TrimSpace(value)))
	if _, ok := entityBehaviors[normalized]; !ok {
		return "", fmt.Errorf("invalid entity_type: %s", value)
	}
	return normalized, nil
}

// Behavior returns the behavior row for the entity type.
func (e EntityType) Behavior() EntityBehavior {
	return entityBehaviors[e]
}

// Valid reports whether e is a known entity type.
func (e EntityType) Valid() bool {
	_, ok := entityBehaviors[e]
	return ok
}

// OwnerFor builds the owner reference for this entity type. An empty id is Unbound.
func (e EntityType) OwnerFor(id string) OwnerRef {
	id = strings.TrimSpace(id)
	if id == "" {
		return OwnerRef{}
	}
	return OwnerRef{Kind: e.Behavior().Owner, ID: id}
}

// EntityTypes returns all known entity types in declaration order.
func EntityTypes() []EntityType {
	return []EntityType{
		EntityWorkspaceLogo,
		EntityProjectCover,
		EntityUserAvatar,
		EntityUserCover,
		EntityIssueAttachment,
		EntityIssueDescription,
		EntityPageDescription,
		EntityCommentDescription,
		EntityDraftIssueDescription,
	}
}

// OwnerRef is the entity an asset belongs to. The zero value is Unbound.
type OwnerRef struct {
	Kind OwnerKind `json:"kind,omitempty"`
	ID   string    `json:"id,omitempty"`
}

func WorkspaceOwner(id string) OwnerRef  { return OwnerRef{Kind: OwnerWorkspace, ID: id} }
func ProjectOwner(id string) OwnerRef    { return OwnerRef{Kind: OwnerProject, ID: id} }
func UserOwner(id string) OwnerRef       { return OwnerRef{Kind: OwnerUser, ID: id} }
func IssueOwner(id string) OwnerRef      { return OwnerRef{Kind: OwnerIssue, ID: id} }
func PageOwner(id string) OwnerRef       { return OwnerRef{Kind: OwnerPage, ID: id} }
func CommentOwner(id string) OwnerRef    { return OwnerRef{Kind: OwnerComment, ID: id} }
func DraftIssueOwner(id string) OwnerRef { return OwnerRef{Kind: OwnerDraftIssue, ID: id} }

// Bound reports whether the reference names a concrete owner.
func (o OwnerRef) Bound() bool {
	return o.Kind != OwnerUnbound && o.ID != ""
}

func (o OwnerRef) String() string {
	if !o.Bound() {
		return "unbound"
	}
	return string(o.Kind) + ":" + o.ID
}
