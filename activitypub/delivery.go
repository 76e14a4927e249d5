package activitypub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fedipress/fedipress/domain"
	"github.com/fedipress/fedipress/store"
	"github.com/fedipress/fedipress/util"
	"github.com/google/uuid"
)

// maxBackoff caps the exponential retry delay.
const maxBackoff = 5 * time.Minute

// cleanupMaxAge is how long terminal tasks linger before the sweep removes
// them.
const cleanupMaxAge = time.Hour

// DeliveryStats is the queue health snapshot.
type DeliveryStats struct {
	Pending    int `json:"pending"`
	Delivering int `json:"delivering"`
	Failed     int `json:"failed"`
	Total      int `json:"total"`
}

// DeliveryQueue is the durable outbound pipeline: tasks are persisted on
// enqueue, drained in the background, retried with exponential backoff, and
// every per-recipient outcome is appended to the task's NDJSON log.
type DeliveryQueue struct {
	rt *Runtime

	// AutoDrain kicks an asynchronous drain on every enqueue. Disabled
	// only when a caller drives Drain itself.
	AutoDrain bool

	mu       sync.Mutex
	draining bool
}

func NewDeliveryQueue(rt *Runtime) *DeliveryQueue {
	return &DeliveryQueue{rt: rt, AutoDrain: true}
}

// QueueForDelivery persists a task for the given recipients and kicks an
// asynchronous drain. A no-op when federation is disabled or no recipients
// remain.
func (q *DeliveryQueue) QueueForDelivery(activity interface{}, recipients []string, senderHandle string) (*domain.DeliveryTask, error) {
	if !q.rt.Conf.Conf.FederationEnabled {
		q.rt.Log.Debugf("DeliveryWorker: Federation disabled, dropping enqueue")
		return nil, nil
	}

	var recs []domain.DeliveryRecipient
	seen := make(map[string]bool)
	for _, r := range recipients {
		if r == "" || seen[r] {
			continue
		}
		seen[r] = true
		recs = append(recs, domain.DeliveryRecipient{Url: r})
	}
	if len(recs) == 0 {
		return nil, nil
	}

	activityJSON, err := json.Marshal(activity)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal activity: %w", err)
	}

	now := q.rt.Now()
	task := &domain.DeliveryTask{
		Id:           uuid.New().String(),
		Activity:     activityJSON,
		Recipients:   recs,
		RetryCount:   0,
		NextRetryAt:  now,
		Status:       domain.DeliveryPending,
		CreatedAt:    now,
		UpdatedAt:    now,
		SenderHandle: senderHandle,
	}

	if err := q.rt.Store.Put(store.NsDeliveryQueue, task.Id, task); err != nil {
		return nil, fmt.Errorf("failed to persist delivery task: %w", err)
	}

	q.rt.Log.Infof("DeliveryWorker: Queued task %s for %d recipients", task.Id, len(recs))

	if q.AutoDrain {
		go q.Drain(context.Background())
	}

	return task, nil
}

// Drain processes every eligible task once. Only one drain runs at a time;
// the context cancels cooperatively between tasks.
func (q *DeliveryQueue) Drain(ctx context.Context) {
	q.mu.Lock()
	if q.draining {
		q.mu.Unlock()
		return
	}
	q.draining = true
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.draining = false
		q.mu.Unlock()
	}()

	ids, err := q.rt.Store.List(store.NsDeliveryQueue)
	if err != nil {
		q.rt.Log.Errorf("DeliveryWorker: Failed to read queue: %v", err)
		return
	}

	now := q.rt.Now()
	for _, id := range ids {
		select {
		case <-ctx.Done():
			return
		default:
		}

		var task domain.DeliveryTask
		if err := q.rt.Store.Get(store.NsDeliveryQueue, id, &task); err != nil {
			continue
		}
		if task.Status != domain.DeliveryPending || task.NextRetryAt.After(now) {
			continue
		}

		q.processTask(&task)
	}
}

// processTask attempts every not-yet-delivered recipient of one task and
// applies the outcome policy.
func (q *DeliveryQueue) processTask(task *domain.DeliveryTask) {
	task.Status = domain.DeliveryDelivering
	task.UpdatedAt = q.rt.Now()
	if err := q.rt.Store.Put(store.NsDeliveryQueue, task.Id, task); err != nil {
		q.rt.Log.Errorf("DeliveryWorker: Failed to mark task %s delivering: %v", task.Id, err)
		return
	}

	var senderKey *domain.StoredActor
	if task.SenderHandle != "" {
		err, stored := EnsureActor(q.rt, task.SenderHandle)
		if err != nil {
			q.rt.Log.Errorf("DeliveryWorker: No key for sender %s: %v", task.SenderHandle, err)
		} else {
			senderKey = stored
		}
	}

	successes, failures := 0, 0
	for i := range task.Recipients {
		recipient := &task.Recipients[i]
		if recipient.Delivered {
			continue
		}

		err := q.deliverTo(recipient.Url, task.Activity, senderKey)
		if err != nil {
			failures++
			recipient.Error = err.Error()
			q.rt.Log.Warnf("DeliveryWorker: Delivery to %s failed: %v", recipient.Url, err)
		} else {
			successes++
			recipient.Delivered = true
			recipient.Error = ""
			q.rt.Log.Infof("DeliveryWorker: Successfully delivered to %s", recipient.Url)
		}
		q.appendLog(task.Id, recipient.Url, err)
	}

	now := q.rt.Now()
	task.UpdatedAt = now

	switch {
	case failures == 0:
		// every recipient has the activity; the task is done
		task.Status = domain.DeliveryDelivered
		if err := q.rt.Store.Delete(store.NsDeliveryQueue, task.Id); err != nil {
			q.rt.Log.Errorf("DeliveryWorker: Failed to remove task %s: %v", task.Id, err)
		}

	case task.RetryCount >= q.rt.Conf.Conf.MaxDeliveryRetries:
		task.Status = domain.DeliveryFailed
		task.Error = fmt.Sprintf("gave up after %d retries, %d recipients unreached", task.RetryCount, failures)
		q.rt.Log.Warnf("DeliveryWorker: Giving up on task %s after %d attempts", task.Id, task.RetryCount)
		q.rt.Store.Put(store.NsDeliveryQueue, task.Id, task)

	default:
		// retry only the failed recipients; delivered ones are remembered
		task.Status = domain.DeliveryPending
		task.RetryCount++
		backoff := time.Duration(1<<uint(task.RetryCount)) * time.Second
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
		task.NextRetryAt = now.Add(backoff)
		q.rt.Log.Infof("DeliveryWorker: Task %s has %d unreached recipients (attempt %d), retry in %s",
			task.Id, failures, task.RetryCount, backoff)
		q.rt.Store.Put(store.NsDeliveryQueue, task.Id, task)
	}
}

// deliverTo resolves a recipient's inbox and POSTs the signed activity.
func (q *DeliveryQueue) deliverTo(recipientUri string, activityJSON []byte, sender *domain.StoredActor) error {
	inboxUri, err := ResolveInbox(q.rt, recipientUri)
	if err != nil {
		return domain.DeliveryError("failed to resolve inbox of %s: %v", recipientUri, err)
	}

	req, err := http.NewRequest(http.MethodPost, inboxUri, bytes.NewReader(activityJSON))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/activity+json")
	req.Header.Set("Accept", "application/activity+json")
	req.Header.Set("User-Agent", util.UserAgent())
	req.Header.Set("Date", q.rt.Now().UTC().Format(http.TimeFormat))

	if sender != nil {
		if err := SignRequest(req, sender.PrivateKeyPem, sender.PublicKeyId, activityJSON); err != nil {
			return fmt.Errorf("failed to sign request: %w", err)
		}
	}

	resp, err := q.rt.Client.Do(req)
	if err != nil {
		return domain.DeliveryError("request to %s failed: %v", inboxUri, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.DeliveryError("remote inbox %s returned status %d", inboxUri, resp.StatusCode)
	}

	return nil
}

// appendLog writes one NDJSON outcome line to the task's delivery log.
func (q *DeliveryQueue) appendLog(taskId, recipient string, deliveryErr error) {
	if q.rt.LogDir == "" {
		return
	}
	if err := os.MkdirAll(q.rt.LogDir, 0755); err != nil {
		return
	}

	entry := map[string]interface{}{
		"time":      q.rt.Now().UTC().Format(time.RFC3339),
		"taskId":    taskId,
		"recipient": recipient,
		"ok":        deliveryErr == nil,
	}
	if deliveryErr != nil {
		entry["error"] = deliveryErr.Error()
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return
	}

	path := filepath.Join(q.rt.LogDir, taskId+".log")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	defer f.Close()
	f.Write(append(line, '\n'))
}

// Cleanup removes terminal tasks untouched for longer than maxAge and their
// logs. Returns the number of removed tasks.
func (q *DeliveryQueue) Cleanup(maxAge time.Duration) int {
	if maxAge <= 0 {
		maxAge = cleanupMaxAge
	}

	ids, err := q.rt.Store.List(store.NsDeliveryQueue)
	if err != nil {
		return 0
	}

	now := q.rt.Now()
	removed := 0
	for _, id := range ids {
		var task domain.DeliveryTask
		if err := q.rt.Store.Get(store.NsDeliveryQueue, id, &task); err != nil {
			continue
		}
		if task.Status != domain.DeliveryDelivered && task.Status != domain.DeliveryFailed {
			continue
		}
		if now.Sub(task.UpdatedAt) < maxAge {
			continue
		}
		if err := q.rt.Store.Delete(store.NsDeliveryQueue, id); err == nil {
			removed++
			if q.rt.LogDir != "" {
				os.Remove(filepath.Join(q.rt.LogDir, id+".log"))
			}
		}
	}

	if removed > 0 {
		q.rt.Log.Infof("DeliveryWorker: Cleaned up %d finished tasks", removed)
	}
	return removed
}

// Stats snapshots the queue for operators.
func (q *DeliveryQueue) Stats() (DeliveryStats, error) {
	var stats DeliveryStats

	ids, err := q.rt.Store.List(store.NsDeliveryQueue)
	if err != nil {
		return stats, err
	}

	for _, id := range ids {
		var task domain.DeliveryTask
		if err := q.rt.Store.Get(store.NsDeliveryQueue, id, &task); err != nil {
			continue
		}
		stats.Total++
		switch task.Status {
		case domain.DeliveryPending:
			stats.Pending++
		case domain.DeliveryDelivering:
			stats.Delivering++
		case domain.DeliveryFailed:
			stats.Failed++
		}
	}
	return stats, nil
}

// StartDeliveryWorker starts the periodic drain plus the cleanup and key
// cache sweeps. The returned stop function shuts the worker down between
// tasks.
func StartDeliveryWorker(rt *Runtime) (stop func()) {
	rt.Log.Info("Starting ActivityPub delivery worker...")

	ctx, cancel := context.WithCancel(context.Background())

	drainTicker := time.NewTicker(10 * time.Second)
	sweepTicker := time.NewTicker(10 * time.Minute)

	go func() {
		for {
			select {
			case <-ctx.Done():
				drainTicker.Stop()
				sweepTicker.Stop()
				return
			case <-drainTicker.C:
				rt.Queue.Drain(ctx)
			case <-sweepTicker.C:
				rt.Queue.Cleanup(cleanupMaxAge)
				rt.Keys.Sweep()
			}
		}
	}()

	return cancel
}
