package worker

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"proctora-backend/internal/models"
	"proctora-backend/internal/repository"
)

const auditQueueKey = "queue:action-log"

// AuditQueue enqueues action-log entries so coordinator operations never
// block on the audit write. Satisfies the coordinator's Auditor.
type AuditQueue struct {
	redis *redis.Client
}

func NewAuditQueue(redisClient *redis.Client) *AuditQueue {
	return &AuditQueue{redis: redisClient}
}

func (q *AuditQueue) Record(sessionID uuid.UUID, actorType string, actorID uuid.UUID, action string, details interface{}) {
	detailsJSON := json.RawMessage("{}")
	if details != nil {
		data, err := json.Marshal(details)
		if err != nil {
			log.Printf("audit: failed to marshal details for %s: %v", action, err)
		} else {
			detailsJSON = data
		}
	}

	entry := models.ActionLog{
		ID:        uuid.New(),
		SessionID: sessionID,
		ActorType: actorType,
		ActorID:   actorID,
		Action:    action,
		Details:   detailsJSON,
		CreatedAt: time.Now().UTC(),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		log.Printf("audit: failed to marshal entry for %s: %v", action, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := q.redis.RPush(ctx, auditQueueKey, data).Err(); err != nil {
		log.Printf("audit: failed to enqueue %s for session %s: %v", action, sessionID, err)
	}
}

// Pool drains the audit queue into Postgres.
type Pool struct {
	redis       *redis.Client
	actionLogs  *repository.ActionLogRepo
	workerCount int
	stopChan    chan struct{}
}

func NewPool(redisClient *redis.Client, actionLogs *repository.ActionLogRepo, workerCount int) *Pool {
	return &Pool{
		redis:       redisClient,
		actionLogs:  actionLogs,
		workerCount: workerCount,
		stopChan:    make(chan struct{}),
	}
}

func (p *Pool) Start() {
	for i := 0; i < p.workerCount; i++ {
		go p.worker(i)
	}
	log.Printf("Started %d audit worker goroutines", p.workerCount)
}

func (p *Pool) Stop() {
	close(p.stopChan)
}

func (p *Pool) worker(id int) {
	for {
		select {
		case <-p.stopChan:
			log.Printf("Audit worker %d shutting down", id)
			return
		default:
		}

		ctx := context.Background()

		// BLPOP with 30s timeout
		result, err := p.redis.BLPop(ctx, 30*time.Second, auditQueueKey).Result()
		if err != nil {
			continue // Timeout or error, retry
		}
		if len(result) < 2 {
			continue
		}

		var entry models.ActionLog
		if err := json.Unmarshal([]byte(result[1]), &entry); err != nil {
			log.Printf("Audit worker %d: failed to parse entry: %v", id, err)
			continue
		}

		if err := p.actionLogs.Create(ctx, &entry); err != nil {
			log.Printf("Audit worker %d: failed to persist %s for session %s: %v", id, entry.Action, entry.SessionID, err)
			// Put it back rather than losing the audit row.
			p.redis.RPush(ctx, auditQueueKey, result[1])
			time.Sleep(time.Second)
		}
	}
}
