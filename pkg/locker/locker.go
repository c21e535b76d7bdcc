package locker

import "sync"

// ==================== ShopLocker 店铺互斥锁 ====================

// ShopLocker 按店铺维度的互斥锁
// Webhook 触发的同步和定时任务触发的同步可能同时命中同一家店铺，
// 取锁后才能进入同步临界区，其他调用方协作式阻塞等待
type ShopLocker struct {
	locks sync.Map // shopID -> *sync.Mutex
}

// NewShopLocker 创建锁管理器
func NewShopLocker() *ShopLocker {
	return &ShopLocker{}
}

// Lock 取得指定店铺的锁，已被占用时阻塞等待
func (l *ShopLocker) Lock(shopID int64) {
	l.mutexFor(shopID).Lock()
}

// Unlock 释放指定店铺的锁
func (l *ShopLocker) Unlock(shopID int64) {
	l.mutexFor(shopID).Unlock()
}

func (l *ShopLocker) mutexFor(shopID int64) *sync.Mutex {
	// LoadOrStore 防止并发重复创建
	actual, _ := l.locks.LoadOrStore(shopID, &sync.Mutex{})
	return actual.(*sync.Mutex)
}
