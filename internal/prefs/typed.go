package prefs

import (
	"encoding/json"
	"log/slog"
	"time"
)

// Get はキーの値をTとして返す。存在しない・読めない場合はdefを返す。
func Get[T any](s *Store, key string, def T) T {
	raw, ok := s.Lookup(key)
	if !ok {
		return def
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		s.logger.Warn("設定値の読み取りに失敗しました",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return def
	}
	return v
}

// Set はvalueをJSONとして保存する。
func Set[T any](s *Store, key string, value T, ttl time.Duration) {
	b, err := json.Marshal(value)
	if err != nil {
		s.logger.Warn("設定値のエンコードに失敗しました",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return
	}
	s.Put(key, b, ttl)
}

// Filters は候補一覧の絞り込み条件。
type Filters struct {
	Programs []string `json:"programs"`
	Studios  []string `json:"studios"`
	Skills   []string `json:"skills"`
}

// 既定のタブ。
const (
	TabPeople = "people"
	TabTeams  = "teams"
)

func filtersKey(userID string) string   { return userID + ".filters" }
func activeTabKey(userID string) string { return userID + ".activeTab" }

// UserFilters はユーザーの絞り込み条件を返す。未設定の場合は空の条件。
func (s *Store) UserFilters(userID string) Filters {
	f := Get(s, filtersKey(userID), Filters{})
	if f.Programs == nil {
		f.Programs = []string{}
	}
	if f.Studios == nil {
		f.Studios = []string{}
	}
	if f.Skills == nil {
		f.Skills = []string{}
	}
	return f
}

// SetUserFilters は絞り込み条件を保存する。
func (s *Store) SetUserFilters(userID string, f Filters) {
	Set(s, filtersKey(userID), f, 0)
}

// ActiveTab は最後に開いていたタブを返す。未設定の場合はTabPeople。
func (s *Store) ActiveTab(userID string) string {
	return Get(s, activeTabKey(userID), TabPeople)
}

// SetActiveTab はタブを保存する。
func (s *Store) SetActiveTab(userID, tab string) {
	Set(s, activeTabKey(userID), tab, 0)
}
