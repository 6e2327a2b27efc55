package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"assetd/internal/blobstore"
	"assetd/internal/jobs"
	"assetd/internal/models"
	"assetd/internal/store"
	"assetd/internal/uploadpolicy"
)

const (
	registryTracerName = "assetd/internal/server"

	defaultMetadataRefetchAfter = 10 * time.Minute
)

// OwnerInvalidator drops cached owner representations after a slot changes.
type OwnerInvalidator interface {
	InvalidateOwner(owner models.OwnerRef)
}

// RegistryConfig wires the collaborators of an AssetRegistry.
type RegistryConfig struct {
	Assets      store.AssetStore
	Owners      store.OwnerStore
	Policies    store.PolicyStore
	Activities  store.ActivityStore
	Gateway     blobstore.Gateway
	Validator   *uploadpolicy.Validator
	Queue       jobs.Queue
	Invalidator OwnerInvalidator

	MaxSizeCeiling       int64
	MetadataRefetchAfter time.Duration
	Logger               *slog.Logger
}

// AssetRegistry owns the file asset state machine. Callers are expected to
// have checked scope membership already.
type AssetRegistry struct {
	assets      store.AssetStore
	owners      store.OwnerStore
	policies    store.PolicyStore
	activities  store.ActivityStore
	gateway     blobstore.Gateway
	validator   *uploadpolicy.Validator
	queue       jobs.Queue
	invalidator OwnerInvalidator

	ceiling      int64
	refetchAfter time.Duration
	logger       *slog.Logger
	tracer       trace.Tracer
	now          func() time.Time
}

func NewAssetRegistry(cfg RegistryConfig) *AssetRegistry {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Validator == nil {
		cfg.Validator = uploadpolicy.New()
	}
	if cfg.Queue == nil {
		cfg.Queue = jobs.NewInline(cfg.Logger)
	}
	if cfg.MaxSizeCeiling <= 0 {
		cfg.MaxSizeCeiling = models.DefaultMaxFileSizeBytes
	}
	if cfg.MetadataRefetchAfter <= 0 {
		cfg.MetadataRefetchAfter = defaultMetadataRefetchAfter
	}
	return &AssetRegistry{
		assets:       cfg.Assets,
		owners:       cfg.Owners,
		policies:     cfg.Policies,
		activities:   cfg.Activities,
		gateway:      cfg.Gateway,
		validator:    cfg.Validator,
		queue:        cfg.Queue,
		invalidator:  cfg.Invalidator,
		ceiling:      cfg.MaxSizeCeiling,
		refetchAfter: cfg.MetadataRefetchAfter,
		logger:       cfg.Logger,
		tracer:       otel.Tracer(registryTracerName),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// assetScope is the owner scope a request addresses assets through.
type assetScope struct {
	Kind        models.ScopeKind
	WorkspaceID string
	ProjectID   string
	UserID      string
}

func userScope(userID string) assetScope {
	return assetScope{Kind: models.ScopeUser, UserID: userID}
}

func workspaceScope(workspaceID string) assetScope {
	return assetScope{Kind: models.ScopeWorkspace, WorkspaceID: workspaceID}
}

func projectScope(workspaceID, projectID string) assetScope {
	return assetScope{Kind: models.ScopeProject, WorkspaceID: workspaceID, ProjectID: projectID}
}

// contains reports whether the asset is addressable through the scope.
func (s assetScope) contains(asset *models.FileAsset) bool {
	if asset == nil {
		return false
	}
	switch s.Kind {
	case models.ScopeUser:
		return asset.WorkspaceID == "" && asset.CreatedBy == s.UserID
	case models.ScopeWorkspace:
		return asset.WorkspaceID == s.WorkspaceID && asset.ProjectID == ""
	case models.ScopeProject:
		return asset.WorkspaceID == s.WorkspaceID && asset.ProjectID == s.ProjectID
	default:
		return false
	}
}

// CreateAssetInput is the declared metadata of an upload the client intends to make.
type CreateAssetInput struct {
	Name       string
	Type       string
	Size       int64
	EntityType models.EntityType
	EntityID   string
	ActorID    string
}

// PendingAsset is a newly recorded asset plus the descriptor its bytes go to.
type PendingAsset struct {
	Asset  *models.FileAsset
	Upload blobstore.UploadDescriptor
}

// CreatePending validates declared metadata against the current policy,
// records a pending asset and issues a presigned upload for it.
func (r *AssetRegistry) CreatePending(ctx context.Context, scope assetScope, in CreateAssetInput) (*PendingAsset, error) {
	ctx, span := r.tracer.Start(ctx, "registry.create_pending", trace.WithAttributes(
		attribute.String("asset.entity_type", string(in.EntityType)),
	))
	defer span.End()

	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, badRequestCode(fmt.Errorf("name is required"), ErrCodeMissingRequired)
	}
	if !in.EntityType.Valid() {
		return nil, badRequestCode(fmt.Errorf("invalid entity_type: %s", in.EntityType), ErrCodeInvalidEntityType)
	}
	owner, err := r.resolveOwner(ctx, scope, in.EntityType, in.EntityID)
	if err != nil {
		return nil, err
	}

	contentType := uploadpolicy.NormalizeMediaType(in.Type)
	if contentType == "" {
		contentType = r.validator.GuessMediaType(name)
	}
	size := in.Size
	if size <= 0 {
		size = r.ceiling
	}

	policy, err := r.policies.GetFilePolicy(ctx)
	if err != nil {
		return nil, err
	}
	if err := r.validator.ValidateMetadata(policy, uploadpolicy.Metadata{Name: name, DeclaredType: contentType, Size: size}); err != nil {
		return nil, policyRejected(err)
	}
	if size > r.ceiling {
		size = r.ceiling
	}

	scopeID := scope.WorkspaceID
	if scope.Kind == models.ScopeUser {
		scopeID = ""
	}
	key, err := store.GenerateStorageKey(scopeID, name, func(candidate string) (bool, error) {
		return r.assets.AssetKeyExists(ctx, candidate)
	})
	if err != nil {
		return nil, err
	}

	asset := &models.FileAsset{
		StorageKey:  key,
		Attributes:  models.AssetAttributes{Name: name, Type: contentType, Size: size},
		Size:        size,
		EntityType:  in.EntityType,
		Owner:       owner,
		WorkspaceID: scope.WorkspaceID,
		ProjectID:   scope.ProjectID,
		CreatedBy:   in.ActorID,
	}
	now := r.now()
	asset.CreatedAt, asset.UpdatedAt = now, now
	if err := r.assets.CreateAsset(ctx, asset); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("asset.id", asset.ID))

	upload, err := r.gateway.PresignUpload(ctx, key, contentType, size)
	if err != nil {
		if delErr := r.assets.DeleteAsset(ctx, asset.ID); delErr != nil {
			r.logger.Error("discard pending asset failed", "asset_id", asset.ID, "error", delErr)
		}
		return nil, err
	}

	r.emitActivity(ctx, asset, activityCreated, in.ActorID)
	return &PendingAsset{Asset: asset, Upload: upload}, nil
}

// resolveOwner applies the entity behavior table to the requested scope.
func (r *AssetRegistry) resolveOwner(ctx context.Context, scope assetScope, entityType models.EntityType, entityID string) (models.OwnerRef, error) {
	behavior := entityType.Behavior()
	entityID = strings.TrimSpace(entityID)

	if behavior.UserScoped != (scope.Kind == models.ScopeUser) {
		return models.OwnerRef{}, badRequestCode(fmt.Errorf("entity_type %s is not allowed in %s scope", entityType, scope.Kind), ErrCodeInvalidEntityType)
	}
	if entityID != "" && !validateID(entityID) {
		return models.OwnerRef{}, badRequestCode(fmt.Errorf("invalid entity_identifier"), ErrCodeInvalidID)
	}

	switch behavior.Owner {
	case models.OwnerUser:
		return models.UserOwner(scope.UserID), nil
	case models.OwnerWorkspace:
		if scope.Kind != models.ScopeWorkspace {
			return models.OwnerRef{}, badRequestCode(fmt.Errorf("entity_type %s requires workspace scope", entityType), ErrCodeInvalidEntityType)
		}
		if entityID != "" && entityID != scope.WorkspaceID {
			return models.OwnerRef{}, badRequestCode(fmt.Errorf("entity_identifier must be the workspace id"), ErrCodeInvalidArgument)
		}
		return models.WorkspaceOwner(scope.WorkspaceID), nil
	case models.OwnerProject:
		if scope.Kind == models.ScopeProject {
			if entityID != "" && entityID != scope.ProjectID {
				return models.OwnerRef{}, badRequestCode(fmt.Errorf("entity_identifier must be the project id"), ErrCodeInvalidArgument)
			}
			return models.ProjectOwner(scope.ProjectID), nil
		}
		if entityID == "" {
			return models.OwnerRef{}, nil
		}
		project, err := r.owners.GetProject(ctx, scope.WorkspaceID, entityID)
		if err != nil {
			return models.OwnerRef{}, err
		}
		if project == nil {
			return models.OwnerRef{}, notFoundCode(fmt.Errorf("project not found"), ErrCodeOwnerNotFound)
		}
		return models.ProjectOwner(project.ID), nil
	default:
		return entityType.OwnerFor(entityID), nil
	}
}

// Get returns an active asset visible through the scope.
func (r *AssetRegistry) Get(ctx context.Context, scope assetScope, id string) (*models.FileAsset, error) {
	asset, err := r.assets.GetAsset(ctx, id)
	if err != nil {
		return nil, err
	}
	if !scope.contains(asset) {
		return nil, notFoundCode(fmt.Errorf("asset not found"), ErrCodeAssetNotFound)
	}
	return asset, nil
}

// GetStatic returns an active asset whose entity type allows unauthenticated redirects.
func (r *AssetRegistry) GetStatic(ctx context.Context, id string) (*models.FileAsset, error) {
	asset, err := r.assets.GetAsset(ctx, id)
	if err != nil {
		return nil, err
	}
	if asset == nil {
		return nil, notFoundCode(fmt.Errorf("asset not found"), ErrCodeAssetNotFound)
	}
	if !asset.EntityType.Behavior().StaticRedirect {
		return nil, badRequestCode(fmt.Errorf("invalid entity type"), ErrCodeInvalidEntityType)
	}
	return asset, nil
}

// ConfirmUpload marks the asset uploaded. Repeating it is a no-op apart from
// attribute merges.
func (r *AssetRegistry) ConfirmUpload(ctx context.Context, scope assetScope, id string, update *models.AssetAttributes, actorID string) (*models.FileAsset, error) {
	ctx, span := r.tracer.Start(ctx, "registry.confirm_upload", trace.WithAttributes(attribute.String("asset.id", id)))
	defer span.End()

	asset, err := r.Get(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	behavior := asset.EntityType.Behavior()
	wasUploaded := asset.IsUploaded

	if behavior.Revalidate && !wasUploaded {
		if err := r.revalidate(ctx, asset); err != nil {
			return nil, err
		}
	}

	attributes := asset.Attributes
	if update != nil {
		attributes = attributes.Merge(*update)
	}
	now := r.now()
	marked, err := r.assets.MarkAssetUploaded(ctx, asset.ID, attributes, now)
	if err != nil {
		return nil, err
	}
	if !marked {
		return nil, notFoundCode(fmt.Errorf("asset not found"), ErrCodeAssetNotFound)
	}

	if asset.StorageMetadata == nil {
		r.requestMetadata(ctx, asset.ID, now)
	}

	if behavior.Slot != models.SlotNone && asset.Owner.Bound() {
		if err := r.rebind(ctx, behavior.Slot, asset.Owner, asset.ID, now); err != nil {
			return nil, err
		}
	}

	if !wasUploaded {
		r.emitActivity(ctx, asset, activityUploaded, actorID)
	}

	// A concurrent rebind may already have superseded this asset.
	confirmed, err := r.assets.GetAssetIncludingDeleted(ctx, asset.ID)
	if err != nil {
		return nil, err
	}
	if confirmed == nil {
		return nil, notFoundCode(fmt.Errorf("asset not found"), ErrCodeAssetNotFound)
	}
	return confirmed, nil
}

// ScreenUpload checks the leading bytes of an upload passing through the
// server against the current policy before anything reaches storage.
func (r *AssetRegistry) ScreenUpload(ctx context.Context, asset *models.FileAsset, head []byte) error {
	policy, err := r.policies.GetFilePolicy(ctx)
	if err != nil {
		return err
	}
	sniffed, err := r.validator.ValidateContent(policy, asset.DisplayName(), asset.Size, bytes.NewReader(head))
	if err != nil {
		r.logger.Info("rejecting upload", "asset_id", asset.ID, "key", asset.StorageKey, "detected", sniffed)
		return policyRejected(err)
	}
	return nil
}

// revalidate sniffs the stored bytes. Content that contradicts the extension
// never becomes an asset: both the object and the row are removed.
func (r *AssetRegistry) revalidate(ctx context.Context, asset *models.FileAsset) error {
	obj, err := r.gateway.Get(ctx, asset.StorageKey)
	if errors.Is(err, blobstore.ErrNotFound) {
		return badRequestCode(fmt.Errorf("file has not been uploaded"), ErrCodeAssetNotUploaded)
	}
	if err != nil {
		return err
	}
	head, err := uploadpolicy.ReadHead(obj)
	_ = obj.Close()
	if err != nil {
		return storageUnavailable(err)
	}

	sniffed, err := r.validator.CheckConsistency(asset.DisplayName(), head)
	if err == nil {
		return nil
	}
	r.logger.Info("discarding upload with mismatched content", "asset_id", asset.ID, "key", asset.StorageKey, "detected", sniffed)
	if delErr := r.gateway.Delete(ctx, asset.StorageKey); delErr != nil && !errors.Is(delErr, blobstore.ErrNotFound) {
		r.logger.Warn("delete rejected object failed", "key", asset.StorageKey, "error", delErr)
	}
	if delErr := r.assets.DeleteAsset(ctx, asset.ID); delErr != nil {
		return delErr
	}
	return policyRejected(err)
}

func (r *AssetRegistry) rebind(ctx context.Context, slot models.RebindSlot, owner models.OwnerRef, assetID string, now time.Time) error {
	previous, err := r.assets.SwapOwnerSlot(ctx, slot, owner.ID, assetID, now)
	if errors.Is(err, store.ErrOwnerNotFound) {
		return notFoundCode(fmt.Errorf("%s not found", owner.Kind), ErrCodeOwnerNotFound)
	}
	if err != nil {
		return err
	}
	if previous != "" {
		r.logger.Debug("owner slot rebound", "owner", owner.String(), "slot", slot, "previous", previous, "asset_id", assetID)
	}
	r.invalidate(owner)
	return nil
}

// requestMetadata claims the in-flight marker and enqueues a fetch. Only the
// claimant enqueues, so concurrent confirms produce one job per stale window.
func (r *AssetRegistry) requestMetadata(ctx context.Context, id string, now time.Time) {
	claimed, err := r.assets.ClaimMetadataFetch(ctx, id, now, now.Add(-r.refetchAfter))
	if err != nil {
		r.logger.Warn("claim metadata fetch failed", "asset_id", id, "error", err)
		return
	}
	if !claimed {
		return
	}
	if err := r.queue.Enqueue(ctx, jobFetchMetadata, metadataJob{AssetID: id}); err != nil {
		r.logger.Warn("enqueue metadata fetch failed", "asset_id", id, "error", err)
	}
}

// SoftDelete hides the asset and clears any owner slot pointing at it.
// Deleting an already deleted asset succeeds.
func (r *AssetRegistry) SoftDelete(ctx context.Context, scope assetScope, id, actorID string) error {
	ctx, span := r.tracer.Start(ctx, "registry.soft_delete", trace.WithAttributes(attribute.String("asset.id", id)))
	defer span.End()

	asset, err := r.assets.GetAssetIncludingDeleted(ctx, id)
	if err != nil {
		return err
	}
	if !scope.contains(asset) {
		return notFoundCode(fmt.Errorf("asset not found"), ErrCodeAssetNotFound)
	}
	if asset.IsDeleted {
		return nil
	}
	changed, err := r.assets.SoftDeleteAsset(ctx, id, r.now())
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	if asset.EntityType.Behavior().Slot != models.SlotNone {
		r.invalidate(asset.Owner)
	}
	r.emitActivity(ctx, asset, activityDeleted, actorID)
	return nil
}

// Restore clears the deleted flag without re-validating against the policy.
func (r *AssetRegistry) Restore(ctx context.Context, scope assetScope, id string) error {
	asset, err := r.assets.GetAssetIncludingDeleted(ctx, id)
	if err != nil {
		return err
	}
	if !scope.contains(asset) {
		return notFoundCode(fmt.Errorf("asset not found"), ErrCodeAssetNotFound)
	}
	if !asset.IsDeleted {
		return nil
	}
	_, err = r.assets.RestoreAsset(ctx, id, r.now())
	return err
}

// BulkBind attaches assets created before their owning entity existed.
// Every id must be an active asset of the scope's workspace sharing one entity type.
func (r *AssetRegistry) BulkBind(ctx context.Context, scope assetScope, ids []string, entityID string) error {
	ctx, span := r.tracer.Start(ctx, "registry.bulk_bind", trace.WithAttributes(attribute.Int("asset.count", len(ids))))
	defer span.End()

	if scope.WorkspaceID == "" {
		return badRequestCode(fmt.Errorf("bulk bind requires a workspace"), ErrCodeInvalidArgument)
	}
	entityID = strings.TrimSpace(entityID)
	if !validateID(entityID) {
		return badRequestCode(fmt.Errorf("invalid entity_identifier"), ErrCodeInvalidID)
	}

	var entityType models.EntityType
	for _, id := range ids {
		asset, err := r.assets.GetAsset(ctx, id)
		if err != nil {
			return err
		}
		if asset == nil || asset.WorkspaceID != scope.WorkspaceID {
			return notFoundCode(fmt.Errorf("asset %s not found", id), ErrCodeAssetNotFound)
		}
		if entityType == "" {
			entityType = asset.EntityType
		} else if asset.EntityType != entityType {
			return badRequestCode(fmt.Errorf("assets must share one entity_type"), ErrCodeInvalidEntityType)
		}
	}

	behavior := entityType.Behavior()
	switch {
	case behavior.UserScoped, behavior.Owner == models.OwnerWorkspace:
		return badRequestCode(fmt.Errorf("entity_type %s cannot be bulk bound", entityType), ErrCodeInvalidEntityType)
	case behavior.Slot != models.SlotNone && len(ids) > 1:
		return badRequestCode(fmt.Errorf("entity_type %s binds a single asset", entityType), ErrCodeInvalidArgument)
	}

	if behavior.Owner == models.OwnerProject {
		if scope.ProjectID == "" || entityID != scope.ProjectID {
			return badRequestCode(fmt.Errorf("entity_identifier must be the project id"), ErrCodeInvalidArgument)
		}
	}

	now := r.now()
	if err := r.assets.BindAssets(ctx, scope.WorkspaceID, ids, entityType, entityID, now); err != nil {
		return err
	}
	if behavior.Slot != models.SlotNone {
		return r.rebind(ctx, behavior.Slot, entityType.OwnerFor(entityID), ids[0], now)
	}
	return nil
}

// ListOptions narrows ListForOwner.
type ListOptions struct {
	EntityType     models.EntityType
	EntityID       string
	IncludePending bool
	Limit          int
}

// ListForOwner returns the scope's active assets, newest first.
func (r *AssetRegistry) ListForOwner(ctx context.Context, scope assetScope, opts ListOptions) ([]models.FileAsset, error) {
	filter := store.AssetFilter{
		EntityType:     opts.EntityType,
		EntityID:       opts.EntityID,
		IncludePending: opts.IncludePending,
		Limit:          opts.Limit,
	}
	switch scope.Kind {
	case models.ScopeUser:
		filter.UserID = scope.UserID
	case models.ScopeProject:
		filter.WorkspaceID, filter.ProjectID = scope.WorkspaceID, scope.ProjectID
	default:
		filter.WorkspaceID = scope.WorkspaceID
	}
	return r.assets.ListAssets(ctx, filter)
}

func (r *AssetRegistry) invalidate(owner models.OwnerRef) {
	if r.invalidator != nil && owner.Bound() {
		r.invalidator.InvalidateOwner(owner)
	}
}
