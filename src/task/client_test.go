package task

import (
	"testing"
	"time"
)

func TestResourceQuotaConcurrencyLimit(t *testing.T) {
	quota := NewResourceQuota()
	quota.MaxConcurrent = 2
	quota.MaxDailyTasks = 100

	if err := quota.TryAcquire(); err != nil {
		t.Fatalf("第一个槽位应可用: %v", err)
	}
	if err := quota.TryAcquire(); err != nil {
		t.Fatalf("第二个槽位应可用: %v", err)
	}
	if err := quota.TryAcquire(); err == nil {
		t.Fatal("超过并发上限应被拒绝")
	}

	quota.Release()
	if err := quota.TryAcquire(); err != nil {
		t.Fatalf("释放后槽位应可复用: %v", err)
	}
}

func TestResourceQuotaDailyLimit(t *testing.T) {
	quota := NewResourceQuota()
	quota.MaxConcurrent = 100
	quota.MaxDailyTasks = 3

	for i := 0; i < 3; i++ {
		if err := quota.TryAcquire(); err != nil {
			t.Fatalf("第%d次申请应成功: %v", i+1, err)
		}
		quota.Release()
	}
	if err := quota.TryAcquire(); err == nil {
		t.Fatal("超过每日配额应被拒绝")
	}

	// Refund退还每日配额，Release不退还
	quota.Refund()
	if err := quota.TryAcquire(); err != nil {
		t.Fatalf("退还后应可再次申请: %v", err)
	}
}

func TestResourceQuotaDailyReset(t *testing.T) {
	quota := NewResourceQuota()
	quota.MaxDailyTasks = 1

	if err := quota.TryAcquire(); err != nil {
		t.Fatalf("申请失败: %v", err)
	}
	quota.Release()
	if err := quota.TryAcquire(); err == nil {
		t.Fatal("当日配额用尽应被拒绝")
	}

	// 模拟跨天
	quota.mu.Lock()
	quota.lastReset = time.Now().AddDate(0, 0, -1)
	quota.mu.Unlock()
	quota.resetIfNewDay()

	if err := quota.TryAcquire(); err != nil {
		t.Errorf("跨天后配额应重置: %v", err)
	}
}
