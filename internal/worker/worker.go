package worker

import (
	"log"

	"personabot/internal/models"
)

const msgProcessingFailed = "The service is temporarily unavailable. Please try again later."

type worker struct {
	pool       *jobChannelPool
	jobChannel chan Job
}

func newWorker(pool *jobChannelPool) *worker {
	return &worker{
		pool:       pool,
		jobChannel: make(chan Job),
	}
}

func (w *worker) start() {
	go func() {
		for {
			w.pool.release(w.jobChannel)
			job := <-w.jobChannel
			if job.stop {
				w.pool.retire(w.jobChannel)
				return
			}
			w.process(job)
		}
	}()
}

func (w *worker) process(job Job) {
	resp, err := w.pool.handler.HandleEvent(job.Ctx, job.Event)
	if err != nil {
		log.Printf("event %s for user %d failed: %v", job.Event.ID, job.Event.UserID, err)
		resp = models.Response{Text: msgProcessingFailed}
	}
	deliver(job, resp)
	w.pool.done(job.Event.UserID)
}
