package worker

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/pr-poehali-dev/tic-tac-toe-site/internal/repository"
	"github.com/pr-poehali-dev/tic-tac-toe-site/internal/service"
	"github.com/pr-poehali-dev/tic-tac-toe-site/internal/tasks"
)

// DefaultSweepSchedule 结算补偿任务的执行周期
const DefaultSweepSchedule = "@every 1m"

// WorkerServer 封装了 Asynq Worker Server 和周期任务调度器的启动和关闭逻辑
type WorkerServer struct {
	server    *asynq.Server
	scheduler *asynq.Scheduler
	log       *logrus.Entry
	mux       *asynq.ServeMux
	schedule  string
}

// NewWorkerServer 创建一个新的 WorkerServer 实例
func NewWorkerServer(
	redisOpt asynq.RedisClientOpt,
	roomRepo repository.RoomRepository,
	settlementRepo repository.SettlementRepository,
	settlementScheduler service.SettlementScheduler,
	sweepSchedule string,
	logger *logrus.Logger,
) *WorkerServer {
	logEntry := logger.WithField("component", "worker_server")
	if sweepSchedule == "" {
		sweepSchedule = DefaultSweepSchedule
	}

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				tasks.QueueCritical: 6,
				tasks.QueueDefault:  3,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				taskLogger(ctx, task).Errorf("Task failed: %v", err)
			}),
			Logger:   logEntry,
			LogLevel: asynq.WarnLevel,
		},
	)

	mux := asynq.NewServeMux()
	mux.Handle(tasks.TypeRoomSettlement, NewSettlementHandler(roomRepo, settlementRepo))
	mux.Handle(tasks.TypeSettlementSweep, NewSettlementSweepHandler(settlementRepo, settlementScheduler, DefaultSweepBatchSize))

	return &WorkerServer{
		server:    server,
		scheduler: asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{Logger: logEntry, LogLevel: asynq.WarnLevel}),
		log:       logEntry,
		mux:       mux,
		schedule:  sweepSchedule,
	}
}

// Start 启动调度器和 Worker Server，不阻塞
func (ws *WorkerServer) Start() error {
	entryID, err := ws.scheduler.Register(ws.schedule, tasks.NewSettlementSweepTask())
	if err != nil {
		return fmt.Errorf("could not register settlement sweep task: %w", err)
	}
	ws.log.Infof("Settlement sweep registered with schedule '%s' (EntryID: %s)", ws.schedule, entryID)
	if err := ws.scheduler.Start(); err != nil {
		return fmt.Errorf("could not start asynq scheduler: %w", err)
	}

	ws.log.Info("Worker server starting...")
	if err := ws.server.Start(ws.mux); err != nil {
		ws.scheduler.Shutdown()
		return fmt.Errorf("could not start worker server: %w", err)
	}
	return nil
}

// Shutdown 优雅地关闭调度器和 Worker Server
func (ws *WorkerServer) Shutdown() {
	ws.log.Info("Shutting down worker server...")
	ws.scheduler.Shutdown()
	ws.server.Shutdown()
	ws.log.Info("Worker server shut down complete.")
}
