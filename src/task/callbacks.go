package task

import "fmt"

// CallBack bridges a task's terminal state back to the submitter. Handlers
// run on their own goroutine so a slow consumer never blocks a worker, and a
// panicking handler never takes the pool down.
type CallBack struct {
	onComplete func(result interface{})
	onError    func(err error)
}

func NewCallBack(onComplete func(result interface{})) *CallBack {
	return &CallBack{onComplete: onComplete}
}

// WithErrorHandler sets a dedicated failure handler. Without one, failures
// are delivered to the completion handler as an error-shaped result so a
// single handler can cover both paths.
func (cb *CallBack) WithErrorHandler(onError func(err error)) *CallBack {
	cb.onError = onError
	return cb
}

func (cb *CallBack) OnComplete(result interface{}) {
	if cb.onComplete == nil {
		return
	}
	cb.dispatch(func() { cb.onComplete(result) })
}

func (cb *CallBack) OnError(err error) {
	if cb.onError != nil {
		cb.dispatch(func() { cb.onError(err) })
		return
	}
	if cb.onComplete == nil {
		return
	}
	cb.dispatch(func() {
		cb.onComplete(map[string]interface{}{
			"status": "failed",
			"error":  err.Error(),
		})
	})
}

func (cb *CallBack) dispatch(handler func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				fmt.Printf("任务回调panic已恢复: %v\n", r)
			}
		}()
		handler()
	}()
}
