package task

import (
	"errors"
	"testing"
	"time"
)

func waitResult(t *testing.T, ch <-chan interface{}) interface{} {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(time.Second):
		t.Fatal("回调未在超时内触发")
		return nil
	}
}

func TestCallBackOnComplete(t *testing.T) {
	done := make(chan interface{}, 1)
	cb := NewCallBack(func(result interface{}) { done <- result })

	cb.OnComplete("ok")
	if r := waitResult(t, done); r != "ok" {
		t.Errorf("回调结果应为ok, 实际: %v", r)
	}
}

func TestCallBackErrorFallsBackToCompletion(t *testing.T) {
	done := make(chan interface{}, 1)
	cb := NewCallBack(func(result interface{}) { done <- result })

	cb.OnError(errors.New("boom"))

	// 没有专门的失败处理器时，失败以数据形式交给完成处理器
	result, ok := waitResult(t, done).(map[string]interface{})
	if !ok {
		t.Fatal("失败结果应为map")
	}
	if result["status"] != "failed" || result["error"] != "boom" {
		t.Errorf("失败结果内容错误: %v", result)
	}
}

func TestCallBackErrorHandler(t *testing.T) {
	done := make(chan interface{}, 1)
	errCh := make(chan error, 1)
	cb := NewCallBack(func(result interface{}) { done <- result }).
		WithErrorHandler(func(err error) { errCh <- err })

	cb.OnError(errors.New("boom"))
	select {
	case err := <-errCh:
		if err.Error() != "boom" {
			t.Errorf("失败处理器收到的错误不符: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("失败处理器未触发")
	}
	select {
	case r := <-done:
		t.Errorf("设置了失败处理器时不应触发完成处理器: %v", r)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCallBackNilHandlers(t *testing.T) {
	cb := NewCallBack(nil)
	// 没有处理器时两条路径都是安全的空操作
	cb.OnComplete("ignored")
	cb.OnError(errors.New("ignored"))
}

func TestCallBackPanicRecovered(t *testing.T) {
	done := make(chan interface{}, 1)
	cb := NewCallBack(func(result interface{}) {
		if result == nil {
			panic("handler panic")
		}
		done <- result
	})

	cb.OnComplete(nil)
	// panic被恢复后回调仍然可用
	cb.OnComplete("after")
	if r := waitResult(t, done); r != "after" {
		t.Errorf("panic后回调应继续工作, 实际: %v", r)
	}
}
