// Package prefs は小さなUI状態をキー単位でファイルに保存する。
// 値はバージョンと有効期限つきのエンベロープで包まれ、
// 同じディレクトリを共有する他プロセスの書き込みはfsnotifyで検知して反映する。
package prefs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const fileSuffix = ".json"

// envelope はファイルに保存する形式。時刻はUnixミリ秒。
type envelope struct {
	Value     json.RawMessage `json:"value"`
	Timestamp int64           `json:"timestamp"`
	Version   int             `json:"version"`
	ExpiresAt *int64          `json:"expiresAt,omitempty"`
}

// Options はStoreの設定。
type Options struct {
	Dir       string
	Namespace string
	Version   int
}

// Listener は他プロセスによる値の変更を受け取る。削除された場合はvalueがnil。
type Listener func(value json.RawMessage)

// Store はファイルベースの設定ストア。
// 読み書きは同期的で、内部エラーはログに記録して既定値に縮退する。
type Store struct {
	opts   Options
	logger *slog.Logger
	now    func() time.Time

	mu        sync.Mutex
	cache     map[string]envelope
	listeners map[string]map[int]Listener
	nextID    int

	watchMu sync.Mutex
	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	done    chan struct{}
}

// New はStoreを生成する。ディレクトリが存在しない場合は作成する。
func New(opts Options, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("設定ディレクトリの作成に失敗しました: %w", err)
	}
	return &Store{
		opts:      opts,
		logger:    logger,
		now:       time.Now,
		cache:     make(map[string]envelope),
		listeners: make(map[string]map[int]Listener),
	}, nil
}

// validKey はファイル名として安全なキーかを判定する。
func validKey(key string) bool {
	if key == "" || strings.Contains(key, "..") {
		return false
	}
	return !strings.ContainsAny(key, `/\`)
}

func (s *Store) path(key string) string {
	return filepath.Join(s.opts.Dir, s.opts.Namespace+key+fileSuffix)
}

// keyFromPath はファイルパスから論理キーを取り出す。名前空間外のファイルはfalse。
func (s *Store) keyFromPath(p string) (string, bool) {
	name := filepath.Base(p)
	if !strings.HasPrefix(name, s.opts.Namespace) || !strings.HasSuffix(name, fileSuffix) {
		return "", false
	}
	key := strings.TrimSuffix(strings.TrimPrefix(name, s.opts.Namespace), fileSuffix)
	return key, validKey(key)
}

// usable はバージョンと有効期限を満たすかを判定する。
func (s *Store) usable(env envelope) bool {
	if env.Version != s.opts.Version {
		return false
	}
	if env.ExpiresAt != nil && s.now().UnixMilli() >= *env.ExpiresAt {
		return false
	}
	return true
}

func (s *Store) readFile(key string) (envelope, bool, error) {
	b, err := os.ReadFile(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return envelope{}, false, nil
	}
	if err != nil {
		return envelope{}, false, err
	}
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return envelope{}, false, err
	}
	return env, true, nil
}

// Lookup はキーの生の値を返す。存在しない・無効な場合はfalse。
// バージョン不一致や期限切れの値はこの時点で削除される。
func (s *Store) Lookup(key string) (json.RawMessage, bool) {
	if !validKey(key) {
		s.logger.Warn("不正な設定キーです", slog.String("key", key))
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	env, ok := s.cache[key]
	if !ok {
		var err error
		env, ok, err = s.readFile(key)
		if err != nil {
			s.logger.Warn("設定の読み込みに失敗しました",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
			return nil, false
		}
		if !ok {
			return nil, false
		}
	}
	if !s.usable(env) {
		s.evictLocked(key)
		return nil, false
	}
	s.cache[key] = env
	return env.Value, true
}

// Put は値を保存する。ttlが0以下の場合は期限なし。
func (s *Store) Put(key string, value json.RawMessage, ttl time.Duration) {
	if !validKey(key) {
		s.logger.Warn("不正な設定キーです", slog.String("key", key))
		return
	}
	now := s.now()
	env := envelope{Value: value, Timestamp: now.UnixMilli(), Version: s.opts.Version}
	if ttl > 0 {
		exp := now.Add(ttl).UnixMilli()
		env.ExpiresAt = &exp
	}
	b, err := json.Marshal(env)
	if err != nil {
		s.logger.Warn("設定のエンコードに失敗しました",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeFile(key, b); err != nil {
		s.logger.Warn("設定の書き込みに失敗しました",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return
	}
	s.cache[key] = env
}

// writeFile は一時ファイルに書いてからrenameし、読み手が途中状態を見ないようにする。
func (s *Store) writeFile(key string, b []byte) error {
	tmp, err := os.CreateTemp(s.opts.Dir, ".prefs-*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.path(key))
}

// Remove はキーを削除する。
func (s *Store) Remove(key string) {
	if !validKey(key) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictLocked(key)
}

func (s *Store) evictLocked(key string) {
	delete(s.cache, key)
	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("設定の削除に失敗しました",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}

// Subscribe は他プロセスによるキーの変更を購読する。返された関数で解除する。
// 自プロセスのPut/Removeでは通知されない。
func (s *Store) Subscribe(key string, fn Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	if s.listeners[key] == nil {
		s.listeners[key] = make(map[int]Listener)
	}
	s.listeners[key][id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners[key], id)
		if len(s.listeners[key]) == 0 {
			delete(s.listeners, key)
		}
	}
}

// Watch はディレクトリの監視を開始する。2回目以降の呼び出しは何もしない。
func (s *Store) Watch(ctx context.Context) error {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	if s.watcher != nil {
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("ファイル監視の開始に失敗しました: %w", err)
	}
	if err := w.Add(s.opts.Dir); err != nil {
		w.Close()
		return fmt.Errorf("設定ディレクトリの監視に失敗しました: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	s.watcher = w
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(ctx, w, s.done)
	return nil
}

// Close は監視を停止する。
func (s *Store) Close() error {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	if s.watcher == nil {
		return nil
	}
	s.cancel()
	<-s.done
	err := s.watcher.Close()
	s.watcher = nil
	return err
}

func (s *Store) run(ctx context.Context, w *fsnotify.Watcher, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.Events:
			if !ok {
				return
			}
			s.handleEvent(event)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			s.logger.Warn("設定ディレクトリの監視でエラーが発生しました", slog.String("error", err.Error()))
		}
	}
}

// handleEvent はファイルの変化をキャッシュへ反映し、内容が変わった場合のみ通知する。
func (s *Store) handleEvent(event fsnotify.Event) {
	key, ok := s.keyFromPath(event.Name)
	if !ok {
		return
	}

	s.mu.Lock()
	var (
		value   json.RawMessage
		changed bool
	)
	switch {
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		if _, err := os.Stat(event.Name); errors.Is(err, os.ErrNotExist) {
			_, changed = s.cache[key]
			delete(s.cache, key)
		}
	case event.Op&(fsnotify.Create|fsnotify.Write) != 0:
		env, found, err := s.readFile(key)
		if err != nil || !found || !s.usable(env) {
			// 書き込み途中の読み取りは次のイベントで再評価される
			break
		}
		old, had := s.cache[key]
		if had && old.Timestamp == env.Timestamp && bytes.Equal(old.Value, env.Value) {
			break
		}
		s.cache[key] = env
		value, changed = env.Value, true
	}
	var fns []Listener
	if changed {
		for _, fn := range s.listeners[key] {
			fns = append(fns, fn)
		}
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(value)
	}
}
