package resource

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"converge/internal/host"
	"converge/internal/logging"
	"converge/internal/metrics"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-multierror"
)

// ReconciliationController orchestrates the complete reconciliation workflow
type ReconciliationController interface {
	// Reconcile performs the full reconciliation workflow: validate → resolve → observe → compare → execute
	Reconcile(ctx context.Context, catalog *Catalog, dryRun bool) (*ReconciliationResult, error)

	// Remove deletes everything the inventory records for a catalog
	Remove(ctx context.Context, catalogName string, dryRun bool) (*ReconciliationResult, error)

	// GetStatus returns the current reconciliation status for a catalog
	GetStatus(ctx context.Context, catalogName string) (*ReconciliationStatus, error)
}

// ReconciliationResult contains the results of a reconciliation operation
type ReconciliationResult struct {
	CreatedResources   []ResourceAction       `json:"created_resources"`
	UpdatedResources   []ResourceAction       `json:"updated_resources"`
	DeletedResources   []ResourceAction       `json:"deleted_resources"`
	RefreshedResources []ResourceAction       `json:"refreshed_resources"`
	SkippedResources   []ResourceAction       `json:"skipped_resources"`
	Errors             []*ReconciliationError `json:"errors"`
	Summary            string                 `json:"summary"`
	Duration           time.Duration          `json:"duration"`
	CatalogName        string                 `json:"catalog_name"`
	DryRun             bool                   `json:"dry_run"`
}

// Err aggregates the errors of the run, nil when it succeeded
func (r *ReconciliationResult) Err() error {
	var result *multierror.Error
	for _, err := range r.Errors {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// Changes returns the number of successful actions that changed the host
func (r *ReconciliationResult) Changes() int {
	changes := 0
	for _, actions := range [][]ResourceAction{r.CreatedResources, r.UpdatedResources, r.DeletedResources, r.RefreshedResources} {
		changes += countSuccessful(actions)
	}
	return changes
}

// ReconciliationStatus represents the current status of reconciliation for a catalog
type ReconciliationStatus struct {
	CatalogName    string         `json:"catalog_name"`
	LastReconciled time.Time      `json:"last_reconciled"`
	ResourceCounts map[string]int `json:"resource_counts"`
	Status         string         `json:"status"`
	Errors         []string       `json:"errors,omitempty"`
}

// Status values
const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
	StatusFailed   = "failed"
	StatusUnknown  = "unknown"
)

// ResourceAction represents an action taken on a resource during reconciliation
type ResourceAction struct {
	Type      ResourceType  `json:"type"`
	Name      string        `json:"name"`
	Action    ActionType    `json:"action"`
	Message   string        `json:"message,omitempty"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
}

// ActionType represents the type of action taken on a resource
type ActionType string

const (
	ActionCreate  ActionType = "create"
	ActionUpdate  ActionType = "update"
	ActionDelete  ActionType = "delete"
	ActionRefresh ActionType = "refresh"
	ActionSkip    ActionType = "skip"
)

// ControllerOptions configures a reconciliation controller
type ControllerOptions struct {
	RetryAttempts int
	RetryInterval time.Duration
	Inventory     Inventory
	Recorder      metrics.Recorder
}

// DefaultControllerOptions returns three attempts 500ms apart, an in-memory inventory and no metrics
func DefaultControllerOptions() ControllerOptions {
	return ControllerOptions{
		RetryAttempts: 3,
		RetryInterval: 500 * time.Millisecond,
		Inventory:     NewMemoryInventory(),
		Recorder:      metrics.NoopRecorder{},
	}
}

// observationOrder is the order kinds are observed and reported in
var observationOrder = []ResourceType{
	ResourceTypeGroup,
	ResourceTypeUser,
	ResourceTypePackage,
	ResourceTypeArchive,
	ResourceTypeFile,
	ResourceTypeService,
}

// orphanDeletionRank orders the removal of resources that are no longer desired
var orphanDeletionRank = map[ResourceType]int{
	ResourceTypeService: 0,
	ResourceTypeFile:    1,
	ResourceTypeArchive: 2,
	ResourceTypePackage: 3,
	ResourceTypeUser:    4,
	ResourceTypeGroup:   5,
}

// DefaultReconciliationController implements ReconciliationController
type DefaultReconciliationController struct {
	client             host.Client
	managers           map[ResourceType]ResourceManager
	stateComparator    StateComparator
	dependencyResolver DependencyResolver
	options            ControllerOptions
}

// NewReconciliationController creates a new reconciliation controller for a host
func NewReconciliationController(client host.Client, options ControllerOptions) ReconciliationController {
	defaults := DefaultControllerOptions()
	if options.RetryAttempts <= 0 {
		options.RetryAttempts = defaults.RetryAttempts
	}
	if options.RetryInterval <= 0 {
		options.RetryInterval = defaults.RetryInterval
	}
	if options.Inventory == nil {
		options.Inventory = defaults.Inventory
	}
	if options.Recorder == nil {
		options.Recorder = defaults.Recorder
	}

	controller := &DefaultReconciliationController{
		client:             client,
		managers:           make(map[ResourceType]ResourceManager),
		stateComparator:    NewStateComparator(),
		dependencyResolver: NewDependencyResolver(),
		options:            options,
	}

	// Register resource managers
	for _, manager := range []ResourceManager{
		NewFileManager(client),
		NewUserManager(client),
		NewGroupManager(client),
		NewServiceManager(client),
		NewArchiveManager(client),
		NewPackageManager(client),
	} {
		controller.managers[manager.GetResourceType()] = manager
		controller.stateComparator.SetResourceManager(manager.GetResourceType(), manager)
	}

	return controller
}

// Reconcile performs the complete reconciliation workflow
func (rc *DefaultReconciliationController) Reconcile(ctx context.Context, catalog *Catalog, dryRun bool) (*ReconciliationResult, error) {
	startTime := time.Now()
	logger := logging.FromContext(ctx).With().Str("catalog", catalog.Name).Logger()

	result := newResult(catalog.Name, dryRun)

	// Step 1: Validate manifests
	manifests := catalog.GetAllResources()
	if err := rc.validateManifests(manifests); err != nil {
		return rc.fail(result, startTime, rc.addError(result, NewValidationError(ResourceReference{},
			fmt.Sprintf("manifest validation failed: %v", err), err)))
	}
	if err := catalog.ValidateDependencies(); err != nil {
		return rc.fail(result, startTime, rc.addError(result, NewDependencyError(ResourceReference{},
			fmt.Sprintf("invalid dependencies: %v", err), err)))
	}

	// Step 2: Build dependency graph and creation/deletion order
	dependencyGraph, err := rc.dependencyResolver.BuildDependencyGraph(manifests)
	if err != nil {
		return rc.fail(result, startTime, rc.addError(result, NewDependencyError(ResourceReference{},
			fmt.Sprintf("failed to build dependency graph: %v", err), err)))
	}
	creationOrder, err := rc.dependencyResolver.GetCreationOrder(dependencyGraph)
	if err != nil {
		return rc.fail(result, startTime, rc.addError(result, NewDependencyError(ResourceReference{},
			fmt.Sprintf("failed to determine creation order: %v", err), err)))
	}
	deletionOrder, err := rc.dependencyResolver.GetDeletionOrder(dependencyGraph)
	if err != nil {
		return rc.fail(result, startTime, rc.addError(result, NewDependencyError(ResourceReference{},
			fmt.Sprintf("failed to determine deletion order: %v", err), err)))
	}

	// Step 3: Load what previous runs managed
	record, err := rc.options.Inventory.Load(ctx, catalog.Name)
	if err != nil {
		return rc.fail(result, startTime, rc.addError(result, NewConfigurationError(ResourceReference{},
			fmt.Sprintf("failed to load inventory: %v", err), err)))
	}
	if len(manifests) == 0 && record == nil {
		result.Duration = time.Since(startTime)
		result.Summary = "No resources to reconcile"
		return result, nil
	}

	conn := host.NewConnectedClient(rc.client)
	ctx, err = conn.Session(ctx)
	if err != nil {
		return rc.fail(result, startTime, rc.addError(result, NewHostError(ResourceReference{},
			fmt.Sprintf("failed to connect to host: %v", err), err, false)))
	}
	defer conn.Close()

	// Step 4: Observe actual state of desired and previously managed resources
	actual, err := rc.observe(ctx, manifests, record)
	if err != nil {
		return rc.fail(result, startTime, rc.addError(result, NewHostError(ResourceReference{},
			fmt.Sprintf("failed to observe host state: %v", err), err, false)))
	}

	// Step 5: Compare states
	stateDiff, err := rc.stateComparator.CompareStates(manifests, actual.list())
	if err != nil {
		return rc.fail(result, startTime, rc.addError(result, NewReconciliationError(ErrorTypeComparison, ResourceReference{},
			fmt.Sprintf("failed to compare states: %v", err), err, false)))
	}
	plan := newPlan(catalog, stateDiff)
	logger.Debug().
		Int("create", len(stateDiff.ToCreate)).
		Int("update", len(stateDiff.ToUpdate)).
		Int("delete", len(stateDiff.ToDelete)).
		Int("unchanged", len(stateDiff.Unchanged)).
		Msg("state compared")

	// Step 6: Execute changes
	if dryRun {
		rc.populateDryRunResult(result, plan, creationOrder)
	} else {
		failedOrphans := rc.executeReconciliation(ctx, result, plan, dependencyGraph, creationOrder, deletionOrder)

		// Step 7: Persist inventory
		status := rc.statusOf(result)
		if err := rc.saveInventory(ctx, catalog, result, status, failedOrphans, startTime); err != nil {
			rc.addError(result, NewConfigurationError(ResourceReference{},
				fmt.Sprintf("failed to save inventory: %v", err), err))
		}
	}

	// Step 8: Summary
	result.Duration = time.Since(startTime)
	result.Summary = rc.generateSummary(result)
	if !dryRun {
		rc.options.Recorder.ObserveReconcile(catalog.Name, result.Duration, len(result.Errors) == 0)
	}

	logger.Info().Dur("duration", result.Duration).Msg(result.Summary)
	return result, nil
}

// Remove deletes everything the inventory records for a catalog
func (rc *DefaultReconciliationController) Remove(ctx context.Context, catalogName string, dryRun bool) (*ReconciliationResult, error) {
	startTime := time.Now()
	result := newResult(catalogName, dryRun)

	record, err := rc.options.Inventory.Load(ctx, catalogName)
	if err != nil {
		return rc.fail(result, startTime, rc.addError(result, NewConfigurationError(ResourceReference{},
			fmt.Sprintf("failed to load inventory: %v", err), err)))
	}
	if record == nil {
		result.Duration = time.Since(startTime)
		result.Summary = fmt.Sprintf("Catalog %s is not installed", catalogName)
		return result, nil
	}

	conn := host.NewConnectedClient(rc.client)
	ctx, err = conn.Session(ctx)
	if err != nil {
		return rc.fail(result, startTime, rc.addError(result, NewHostError(ResourceReference{},
			fmt.Sprintf("failed to connect to host: %v", err), err, false)))
	}
	defer conn.Close()

	actual, err := rc.observe(ctx, nil, record)
	if err != nil {
		return rc.fail(result, startTime, rc.addError(result, NewHostError(ResourceReference{},
			fmt.Sprintf("failed to observe host state: %v", err), err, false)))
	}

	resources := actual.list()
	sortForDeletion(resources)

	var remaining []ResourceReference
	for _, res := range resources {
		if dryRun {
			rc.appendAction(result, ResourceAction{Type: res.GetType(), Name: res.GetName(), Action: ActionDelete,
				Message: "would be deleted", Timestamp: time.Now()})
			continue
		}
		if !rc.executeAction(ctx, result, ActionDelete, res, "deleted successfully", func(ctx context.Context) error {
			return rc.managers[res.GetType()].DeleteResource(ctx, res)
		}) {
			remaining = append(remaining, Ref(res))
		}
	}

	if !dryRun {
		if len(remaining) == 0 {
			err = rc.options.Inventory.Delete(ctx, catalogName)
		} else {
			record.Managed = remaining
			record.Status = StatusDegraded
			record.Errors = errorStrings(result.Errors)
			err = rc.options.Inventory.Save(ctx, record)
		}
		if err != nil {
			rc.addError(result, NewConfigurationError(ResourceReference{},
				fmt.Sprintf("failed to update inventory: %v", err), err))
		}
	}

	result.Duration = time.Since(startTime)
	result.Summary = rc.generateSummary(result)
	return result, nil
}

// GetStatus returns the current reconciliation status for a catalog
func (rc *DefaultReconciliationController) GetStatus(ctx context.Context, catalogName string) (*ReconciliationStatus, error) {
	status := &ReconciliationStatus{
		CatalogName:    catalogName,
		ResourceCounts: make(map[string]int),
		Status:         StatusUnknown,
	}

	record, err := rc.options.Inventory.Load(ctx, catalogName)
	if err != nil {
		return nil, fmt.Errorf("failed to load inventory: %w", err)
	}
	if record == nil {
		return status, nil
	}

	status.LastReconciled = record.LastReconciled
	status.Status = record.Status
	status.Errors = append(status.Errors, record.Errors...)

	conn := host.NewConnectedClient(rc.client)
	ctx, err = conn.Session(ctx)
	if err != nil {
		status.Status = StatusDegraded
		status.Errors = append(status.Errors, fmt.Sprintf("failed to connect to host: %v", err))
		return status, nil
	}
	defer conn.Close()

	actual, err := rc.observe(ctx, nil, record)
	if err != nil {
		status.Status = StatusDegraded
		status.Errors = append(status.Errors, fmt.Sprintf("failed to observe host state: %v", err))
		return status, nil
	}

	for _, ref := range record.Managed {
		// archive files may be cleaned up after extraction
		if _, exists := actual.Get(ref); !exists && ref.Type != ResourceTypeArchive {
			status.Errors = append(status.Errors, fmt.Sprintf("%s is missing", ref))
			if status.Status == StatusHealthy {
				status.Status = StatusDegraded
			}
			continue
		}
		status.ResourceCounts[string(ref.Type)]++
	}

	return status, nil
}

// plan is the state diff indexed by resource key
type plan struct {
	catalog  *Catalog
	creates  map[string]Resource
	updates  map[string]ResourcePair
	deletes  map[string]Resource // desired absent and still present
	orphans  []Resource          // present, managed before and no longer desired
	toCreate int
}

func newPlan(catalog *Catalog, diff *StateDiff) *plan {
	p := &plan{
		catalog: catalog,
		creates: make(map[string]Resource),
		updates: make(map[string]ResourcePair),
		deletes: make(map[string]Resource),
	}
	for _, res := range diff.ToCreate {
		p.creates[Key(res)] = res
	}
	for _, pair := range diff.ToUpdate {
		p.updates[Key(pair.Desired)] = pair
	}
	for _, res := range diff.ToDelete {
		if _, desired := catalog.Resources[Key(res)]; desired {
			p.deletes[Key(res)] = res
		} else {
			p.orphans = append(p.orphans, res)
		}
	}
	sortForDeletion(p.orphans)
	return p
}

// changes reports whether key is created or updated by the plan
func (p *plan) changes(key string) bool {
	_, create := p.creates[key]
	_, update := p.updates[key]
	return create || update
}

// observedState collects GetActualState results in observation order
type observedState struct {
	ObservedState
	order []string
}

func (o *observedState) list() []Resource {
	resources := make([]Resource, 0, len(o.order))
	for _, key := range o.order {
		resources = append(resources, o.ObservedState[key])
	}
	return resources
}

// observe queries every manager for the desired names of its kind and the names the inventory recorded
func (rc *DefaultReconciliationController) observe(ctx context.Context, manifests []Resource, record *InventoryRecord) (*observedState, error) {
	state := &observedState{ObservedState: make(ObservedState)}

	for _, resourceType := range observationOrder {
		manager := rc.managers[resourceType]

		desired, err := manager.GetDesiredState(manifests)
		if err != nil {
			return nil, err
		}

		seen := make(map[string]bool)
		var names []string
		for _, res := range desired {
			if !seen[res.GetName()] {
				seen[res.GetName()] = true
				names = append(names, res.GetName())
			}
		}
		for _, name := range record.ManagedNames(resourceType) {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
		if len(names) == 0 {
			continue
		}

		var observed []Resource
		_, err = rc.retry(ctx, func(ctx context.Context) error {
			var err error
			observed, err = manager.GetActualState(ctx, names)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", resourceType, err)
		}

		for _, res := range observed {
			key := Key(res)
			if _, exists := state.ObservedState[key]; !exists {
				state.order = append(state.order, key)
			}
			state.ObservedState[key] = res
		}
	}

	return state, nil
}

// executeReconciliation applies the plan and returns the orphans that could not be deleted
func (rc *DefaultReconciliationController) executeReconciliation(ctx context.Context, result *ReconciliationResult, p *plan, graph *DependencyGraph, creationOrder, deletionOrder [][]Resource) []ResourceReference {
	blocked := make(map[string]bool)
	changed := make(map[string]bool)
	started := make(map[string]bool)

	// Creates and updates in dependency order
	for levelIndex, level := range creationOrder {
		for _, res := range level {
			key := Key(res)

			if rc.dependencyBlocked(graph, key, blocked) {
				blocked[key] = true
				if p.changes(key) {
					rc.appendAction(result, ResourceAction{Type: res.GetType(), Name: res.GetName(), Action: ActionSkip,
						Message: "dependency failed", Timestamp: time.Now()})
				}
				continue
			}

			var ok, starts bool
			if _, create := p.creates[key]; create {
				starts = rc.restarts(res, nil)
				ok = rc.executeAction(ctx, result, ActionCreate, res, fmt.Sprintf("created successfully (level %d)", levelIndex), func(ctx context.Context) error {
					return rc.managers[res.GetType()].CreateResource(ctx, res)
				})
			} else if pair, update := p.updates[key]; update {
				starts = rc.restarts(pair.Desired, pair.Actual)
				ok = rc.executeAction(ctx, result, ActionUpdate, res, "updated: "+strings.Join(pair.Reasons, ", "), func(ctx context.Context) error {
					return rc.managers[res.GetType()].UpdateResource(ctx, pair.Desired, pair.Actual)
				})
			} else {
				continue
			}

			if ok {
				changed[key] = true
				started[key] = starts
			} else {
				blocked[key] = true
			}
		}

		if ctx.Err() != nil {
			rc.addError(result, NewConfigurationError(ResourceReference{}, "reconciliation cancelled by context", ctx.Err()))
			return nil
		}
	}

	// Resources ensured absent, in reverse dependency order
	for levelIndex, level := range deletionOrder {
		for _, res := range level {
			observed, exists := p.deletes[Key(res)]
			if !exists {
				continue
			}
			if rc.executeAction(ctx, result, ActionDelete, observed, fmt.Sprintf("deleted successfully (level %d)", levelIndex), func(ctx context.Context) error {
				return rc.managers[observed.GetType()].DeleteResource(ctx, observed)
			}) {
				changed[Key(res)] = true
			}
		}
	}

	// Orphans
	var failedOrphans []ResourceReference
	for _, orphan := range p.orphans {
		if !rc.executeAction(ctx, result, ActionDelete, orphan, "orphan deleted", func(ctx context.Context) error {
			return rc.managers[orphan.GetType()].DeleteResource(ctx, orphan)
		}) {
			failedOrphans = append(failedOrphans, Ref(orphan))
		}
	}

	// Refresh notified resources that were not started by this run
	for _, res := range rc.refreshTargets(p.catalog, changed, started) {
		key := Key(res)
		if blocked[key] {
			continue
		}
		refresher, ok := rc.managers[res.GetType()].(Refresher)
		if !ok {
			continue
		}
		rc.executeAction(ctx, result, ActionRefresh, res, "refreshed", func(ctx context.Context) error {
			return refresher.Refresh(ctx, res)
		})
	}

	return failedOrphans
}

// refreshTargets returns, in catalog order, the resources notified by a changed resource
// that were not started by the same run
func (rc *DefaultReconciliationController) refreshTargets(catalog *Catalog, changed, started map[string]bool) []Resource {
	notified := make(map[string]bool)
	for _, res := range catalog.GetAllResources() {
		if !changed[Key(res)] {
			continue
		}
		for _, target := range res.GetNotifications() {
			notified[target.String()] = true
		}
	}

	var targets []Resource
	for _, res := range catalog.GetAllResources() {
		key := Key(res)
		if notified[key] && !started[key] && !res.IsAbsent() {
			targets = append(targets, res)
		}
	}
	return targets
}

func (rc *DefaultReconciliationController) restarts(desired, actual Resource) bool {
	refresher, ok := rc.managers[desired.GetType()].(Refresher)
	return ok && refresher.Restarts(desired, actual)
}

func (rc *DefaultReconciliationController) dependencyBlocked(graph *DependencyGraph, key string, blocked map[string]bool) bool {
	node, exists := graph.Nodes[key]
	if !exists {
		return false
	}
	for _, dep := range node.Dependencies {
		if blocked[dep] {
			return true
		}
	}
	return false
}

// executeAction runs op with retries and records the outcome
func (rc *DefaultReconciliationController) executeAction(ctx context.Context, result *ReconciliationResult, actionType ActionType, res Resource, message string, op func(context.Context) error) bool {
	startTime := time.Now()
	logger := logging.FromContext(ctx)

	action := ResourceAction{
		Type:      res.GetType(),
		Name:      res.GetName(),
		Action:    actionType,
		Timestamp: startTime,
	}

	attempts, err := rc.retry(ctx, op)
	action.Duration = time.Since(startTime)

	if err != nil {
		action.Error = fmt.Sprintf("failed after %d attempts: %v", attempts, err)
		rc.appendAction(result, action)
		rc.addError(result, NewHostError(Ref(res),
			fmt.Sprintf("failed to %s resource: %v", actionType, err), err, true))
		logger.Error().Err(err).Str("resource", Key(res)).Str("action", string(actionType)).Int("attempts", attempts).Msg("action failed")
		return false
	}

	action.Message = message
	rc.appendAction(result, action)
	logger.Info().Str("resource", Key(res)).Str("action", string(actionType)).Dur("duration", action.Duration).Msg(message)
	return true
}

// retry runs op under a constant backoff bounded by RetryAttempts
func (rc *DefaultReconciliationController) retry(ctx context.Context, op func(context.Context) error) (int, error) {
	attempts := 0
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(rc.options.RetryInterval), uint64(rc.options.RetryAttempts-1)),
		ctx,
	)

	err := backoff.Retry(func() error {
		attempts++
		err := op(ctx)
		if err != nil && isPermanent(err) {
			return backoff.Permanent(err)
		}
		if err != nil {
			logging.FromContext(ctx).Debug().Err(err).Int("attempt", attempts).Msg("retrying")
		}
		return err
	}, policy)

	return attempts, err
}

func isPermanent(err error) bool {
	return errors.Is(err, ErrUnexpectedType) ||
		errors.Is(err, host.ErrChecksumMismatch) ||
		errors.Is(err, host.ErrUnsafePath) ||
		errors.Is(err, host.ErrNoPackageManager) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// populateDryRunResult populates the result for dry run mode
func (rc *DefaultReconciliationController) populateDryRunResult(result *ReconciliationResult, p *plan, creationOrder [][]Resource) {
	now := time.Now()
	changed := make(map[string]bool)
	started := make(map[string]bool)

	for _, level := range creationOrder {
		for _, res := range level {
			key := Key(res)
			if _, create := p.creates[key]; create {
				changed[key] = true
				started[key] = rc.restarts(res, nil)
				rc.appendAction(result, ResourceAction{Type: res.GetType(), Name: res.GetName(), Action: ActionCreate,
					Message: "would be created", Timestamp: now})
			} else if pair, update := p.updates[key]; update {
				changed[key] = true
				started[key] = rc.restarts(pair.Desired, pair.Actual)
				rc.appendAction(result, ResourceAction{Type: res.GetType(), Name: res.GetName(), Action: ActionUpdate,
					Message: "would be updated: " + strings.Join(pair.Reasons, ", "), Timestamp: now})
			}
		}
	}

	for i := len(creationOrder) - 1; i >= 0; i-- {
		for _, res := range creationOrder[i] {
			if _, exists := p.deletes[Key(res)]; exists {
				changed[Key(res)] = true
				rc.appendAction(result, ResourceAction{Type: res.GetType(), Name: res.GetName(), Action: ActionDelete,
					Message: "would be deleted", Timestamp: now})
			}
		}
	}

	for _, orphan := range p.orphans {
		rc.appendAction(result, ResourceAction{Type: orphan.GetType(), Name: orphan.GetName(), Action: ActionDelete,
			Message: "would be deleted (no longer managed)", Timestamp: now})
	}

	for _, res := range rc.refreshTargets(p.catalog, changed, started) {
		if _, ok := rc.managers[res.GetType()].(Refresher); ok {
			rc.appendAction(result, ResourceAction{Type: res.GetType(), Name: res.GetName(), Action: ActionRefresh,
				Message: "would be refreshed", Timestamp: now})
		}
	}
}

// validateManifests checks names, uniqueness, kinds and per-kind specifications
func (rc *DefaultReconciliationController) validateManifests(manifests []Resource) error {
	resourceNames := make(map[string]bool)
	var errs *multierror.Error

	for _, manifest := range manifests {
		// Validate resource name
		if manifest.GetName() == "" {
			return fmt.Errorf("resource name cannot be empty for type %s", manifest.GetType())
		}

		// Check for duplicate names within the same type
		key := Key(manifest)
		if resourceNames[key] {
			return fmt.Errorf("duplicate resource found: %s", key)
		}
		resourceNames[key] = true

		// Validate resource type
		if _, exists := rc.managers[manifest.GetType()]; !exists {
			return fmt.Errorf("unsupported resource type: %s", manifest.GetType())
		}

		if v, ok := manifest.(interface{ Validate() []error }); ok {
			for _, err := range v.Validate() {
				errs = multierror.Append(errs, err)
			}
		}
	}

	return errs.ErrorOrNil()
}

func (rc *DefaultReconciliationController) saveInventory(ctx context.Context, catalog *Catalog, result *ReconciliationResult, status string, failedOrphans []ResourceReference, startTime time.Time) error {
	record := &InventoryRecord{
		Catalog:        catalog.Name,
		LastReconciled: startTime,
		Status:         status,
		ResourceCounts: make(map[string]int),
		Errors:         errorStrings(result.Errors),
	}

	for _, res := range catalog.GetAllResources() {
		if res.IsAbsent() {
			continue
		}
		record.Managed = append(record.Managed, Ref(res))
		record.ResourceCounts[string(res.GetType())]++
	}
	record.Managed = append(record.Managed, failedOrphans...)

	return rc.options.Inventory.Save(ctx, record)
}

func (rc *DefaultReconciliationController) statusOf(result *ReconciliationResult) string {
	if len(result.Errors) == 0 {
		return StatusHealthy
	}
	for _, err := range result.Errors {
		if !err.Recoverable {
			return StatusFailed
		}
	}
	return StatusDegraded
}

func (rc *DefaultReconciliationController) appendAction(result *ReconciliationResult, action ResourceAction) {
	switch action.Action {
	case ActionCreate:
		result.CreatedResources = append(result.CreatedResources, action)
	case ActionUpdate:
		result.UpdatedResources = append(result.UpdatedResources, action)
	case ActionDelete:
		result.DeletedResources = append(result.DeletedResources, action)
	case ActionRefresh:
		result.RefreshedResources = append(result.RefreshedResources, action)
	case ActionSkip:
		result.SkippedResources = append(result.SkippedResources, action)
	}

	outcome := metrics.ResultSuccess
	switch {
	case result.DryRun:
		outcome = metrics.ResultPlanned
	case action.Action == ActionSkip:
		outcome = metrics.ResultSkipped
	case action.Error != "":
		outcome = metrics.ResultFailed
	}
	rc.options.Recorder.ObserveAction(string(action.Type), string(action.Action), outcome)
}

func (rc *DefaultReconciliationController) addError(result *ReconciliationResult, reconciliationError *ReconciliationError) error {
	result.Errors = append(result.Errors, reconciliationError)
	rc.options.Recorder.IncError(string(reconciliationError.Type))
	return reconciliationError
}

// fail finishes a run that stopped before executing anything
func (rc *DefaultReconciliationController) fail(result *ReconciliationResult, startTime time.Time, err error) (*ReconciliationResult, error) {
	result.Duration = time.Since(startTime)
	result.Summary = rc.generateSummary(result)
	rc.options.Recorder.ObserveReconcile(result.CatalogName, result.Duration, false)
	return result, err
}

func (rc *DefaultReconciliationController) generateSummary(result *ReconciliationResult) string {
	created := len(result.CreatedResources)
	updated := len(result.UpdatedResources)
	deleted := len(result.DeletedResources)
	refreshed := len(result.RefreshedResources)
	errors := len(result.Errors)

	if result.DryRun {
		return fmt.Sprintf("Dry run: %d to create, %d to update, %d to delete, %d to refresh",
			created, updated, deleted, refreshed)
	}

	if errors > 0 {
		return fmt.Sprintf("Reconciliation completed with errors: %d/%d created, %d/%d updated, %d/%d deleted, %d skipped, %d errors",
			countSuccessful(result.CreatedResources), created,
			countSuccessful(result.UpdatedResources), updated,
			countSuccessful(result.DeletedResources), deleted,
			len(result.SkippedResources), errors)
	}

	return fmt.Sprintf("Reconciliation completed successfully: %d created, %d updated, %d deleted, %d refreshed",
		created, updated, deleted, refreshed)
}

// Helper functions

func newResult(catalogName string, dryRun bool) *ReconciliationResult {
	return &ReconciliationResult{
		CreatedResources:   make([]ResourceAction, 0),
		UpdatedResources:   make([]ResourceAction, 0),
		DeletedResources:   make([]ResourceAction, 0),
		RefreshedResources: make([]ResourceAction, 0),
		SkippedResources:   make([]ResourceAction, 0),
		Errors:             make([]*ReconciliationError, 0),
		CatalogName:        catalogName,
		DryRun:             dryRun,
	}
}

func countSuccessful(actions []ResourceAction) int {
	n := 0
	for _, action := range actions {
		if action.Error == "" {
			n++
		}
	}
	return n
}

func errorStrings(errs []*ReconciliationError) []string {
	var out []string
	for _, err := range errs {
		out = append(out, err.Error())
	}
	return out
}

// sortForDeletion orders resources so that dependents go first: services, files
// (deepest paths first), archives, packages, users, groups
func sortForDeletion(resources []Resource) {
	sort.SliceStable(resources, func(i, j int) bool {
		ri, rj := orphanDeletionRank[resources[i].GetType()], orphanDeletionRank[resources[j].GetType()]
		if ri != rj {
			return ri < rj
		}
		if resources[i].GetType() == ResourceTypeFile {
			di, dj := strings.Count(resources[i].GetName(), "/"), strings.Count(resources[j].GetName(), "/")
			if di != dj {
				return di > dj
			}
		}
		return resources[i].GetName() < resources[j].GetName()
	})
}
