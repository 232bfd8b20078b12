package progression

import (
	"context"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACE
// Контракт хранилища состояния прогресса. Ядро получает и возвращает
// простые данные; персистентность - забота infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository определяет операции для работы с состоянием пользователя.
type Repository interface {
	// Get возвращает состояние пользователя.
	// Возвращает ErrUserStateNotFound, если состояния ещё нет.
	Get(ctx context.Context, userID string) (*UserState, error)

	// GetOrCreate возвращает состояние, создавая начальное при отсутствии.
	GetOrCreate(ctx context.Context, userID string) (*UserState, error)

	// Save записывает состояние с проверкой версии (compare-and-swap):
	// запись применяется только если версия в хранилище совпадает с
	// st.Version, иначе возвращается ErrUserStateConflict. При успехе
	// версия в st инкрементируется. Это защита от lost update при
	// одновременных писателях (две вкладки, клиент + фоновая задача).
	Save(ctx context.Context, st *UserState) error

	// GetAll возвращает состояния всех пользователей.
	// Используется фоновыми задачами (предупреждения о серии, дайджест).
	GetAll(ctx context.Context) ([]*UserState, error)

	// GetTopStreaks возвращает лучшие текущие серии по убыванию.
	GetTopStreaks(ctx context.Context, limit int) ([]*UserState, error)
}
