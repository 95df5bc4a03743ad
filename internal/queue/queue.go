// Package queue adapts maragu.dev/goqite to the interfaces.TaskQueue
// contract: at-least-once delivery with late acknowledgment, so a worker
// that dies mid-task leaves its message to redeliver once the visibility
// timeout elapses.
package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"maragu.dev/goqite"

	"github.com/ternarybob/logsentinel/internal/interfaces"
)

// ErrNoMessage is returned when the queue is empty.
var ErrNoMessage = errors.New("no messages in queue")

// envelope is the on-wire message body: a task name plus opaque args,
// matching how the Scheduler enqueues fetch_logs_from_source(source_id)
// and the worker pool enqueues process_job(job_id).
type envelope struct {
	Name string `json:"name"`
	Args []byte `json:"args"`
}

// Queue is a goqite-backed interfaces.TaskQueue.
type Queue struct {
	q                 *goqite.Queue
	visibilityTimeout time.Duration
}

// NewQueue creates the goqite tables (if absent) and returns a Queue.
func NewQueue(db *sql.DB, queueName string, visibilityTimeout time.Duration) (*Queue, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := goqite.Setup(ctx, db); err != nil {
		if !strings.Contains(err.Error(), "already exists") {
			return nil, err
		}
	}

	q := goqite.New(goqite.NewOpts{
		DB:      db,
		Name:    queueName,
		Timeout: visibilityTimeout,
	})

	return &Queue{q: q, visibilityTimeout: visibilityTimeout}, nil
}

// Enqueue adds a named task with opaque args to the queue. goqite's Send
// does not report the new message's ID, so the returned string is
// taskName itself, not an ID usable with Extend/Complete; those take the
// Task.ID that Receive returns.
func (q *Queue) Enqueue(ctx context.Context, taskName string, args []byte) (string, error) {
	body, err := json.Marshal(envelope{Name: taskName, Args: args})
	if err != nil {
		return "", err
	}

	if err := q.q.Send(ctx, goqite.Message{Body: body}); err != nil {
		return "", err
	}
	return taskName, nil
}

// Receive pulls the next message. The returned Task is acknowledged only
// by a later Complete call (late ack) - on worker loss the visibility
// timeout expires and the message redelivers.
func (q *Queue) Receive(ctx context.Context) (*interfaces.Task, error) {
	gMsg, err := q.q.Receive(ctx)
	if err != nil {
		return nil, err
	}
	if gMsg == nil {
		return nil, ErrNoMessage
	}

	var env envelope
	if err := json.Unmarshal(gMsg.Body, &env); err != nil {
		return nil, err
	}

	return &interfaces.Task{
		ID:   string(gMsg.ID),
		Name: env.Name,
		Args: env.Args,
	}, nil
}

// Extend extends a task's visibility timeout. Call periodically during a
// long-running task to prevent redelivery (spec §5 suspension points).
func (q *Queue) Extend(ctx context.Context, taskID string, by time.Duration) error {
	return q.q.Extend(ctx, goqite.ID(taskID), by)
}

// Complete acknowledges and removes a task after successful processing.
func (q *Queue) Complete(ctx context.Context, taskID string) error {
	deleteCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return q.q.Delete(deleteCtx, goqite.ID(taskID))
}

var _ interfaces.TaskQueue = (*Queue)(nil)
