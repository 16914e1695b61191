package broker

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskStatusValidate(t *testing.T) {
	t.Run("accepts all lifecycle states", func(t *testing.T) {
		for _, status := range []TaskStatus{
			TaskStatusQueued,
			TaskStatusInProgress,
			TaskStatusCompleted,
			TaskStatusFailed,
		} {
			assert.NoError(t, status.Validate())
		}
	})

	t.Run("rejects unknown status", func(t *testing.T) {
		err := TaskStatus("running").Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "unknown task status")
	})

	t.Run("rejects empty status", func(t *testing.T) {
		assert.Error(t, TaskStatus("").Validate())
	})
}

func TestTaskStatusTerminal(t *testing.T) {
	assert.False(t, TaskStatusQueued.Terminal())
	assert.False(t, TaskStatusInProgress.Terminal())
	assert.True(t, TaskStatusCompleted.Terminal())
	assert.True(t, TaskStatusFailed.Terminal())
}

func TestTaskValidate(t *testing.T) {
	validTask := func() *Task {
		return &Task{
			ID:          uuid.New().String(),
			Payload:     "do the thing",
			Status:      TaskStatusQueued,
			CreatedAtMs: 1700000000000,
		}
	}

	t.Run("valid task passes", func(t *testing.T) {
		require.NoError(t, validTask().Validate())
	})

	t.Run("rejects non-UUID identifier", func(t *testing.T) {
		task := validTask()
		task.ID = "task-42"
		err := task.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "not a valid UUID")
	})

	t.Run("rejects oversized payload", func(t *testing.T) {
		task := validTask()
		task.Payload = string(make([]byte, MaxPayloadBytes+1))
		err := task.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "payload too large")
	})

	t.Run("accepts payload at the bound", func(t *testing.T) {
		task := validTask()
		task.Payload = string(make([]byte, MaxPayloadBytes))
		assert.NoError(t, task.Validate())
	})

	t.Run("rejects invalid status", func(t *testing.T) {
		task := validTask()
		task.Status = "done"
		assert.Error(t, task.Validate())
	})

	t.Run("rejects zero creation time", func(t *testing.T) {
		task := validTask()
		task.CreatedAtMs = 0
		assert.Error(t, task.Validate())
	})
}

func TestResultValidate(t *testing.T) {
	validResult := func() *Result {
		return &Result{
			TaskID:        uuid.New().String(),
			Output:        "42",
			CompletedAtMs: 1700000000000,
			ConsumerID:    "worker-1",
		}
	}

	t.Run("valid result passes", func(t *testing.T) {
		require.NoError(t, validResult().Validate())
	})

	t.Run("rejects non-UUID task identifier", func(t *testing.T) {
		result := validResult()
		result.TaskID = "nope"
		assert.Error(t, result.Validate())
	})

	t.Run("rejects zero completion time", func(t *testing.T) {
		result := validResult()
		result.CompletedAtMs = 0
		assert.Error(t, result.Validate())
	})

	t.Run("rejects empty consumer identity", func(t *testing.T) {
		result := validResult()
		result.ConsumerID = ""
		err := result.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "consumer_id cannot be empty")
	})

	t.Run("empty output is valid for failed tasks", func(t *testing.T) {
		result := validResult()
		result.Output = ""
		result.ErrorDetail = "execution blew up"
		assert.NoError(t, result.Validate())
	})
}

func TestKeyHelpers(t *testing.T) {
	assert.Equal(t, "task:abc", TaskKey("abc"))
	assert.Equal(t, "result:abc", ResultKey("abc"))
	assert.Equal(t, "heartbeat:worker-1", HeartbeatKey("worker-1"))
}
