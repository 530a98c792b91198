package ledger

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"neogvm/internal/model/system"
)

// FileLedger 纯文本账本，每行一个文件名，按字典序存储
// 每次记录都整体重写：临时文件写完后 rename 覆盖，读者看到的要么是旧版本要么是新版本
type FileLedger struct {
	path string
	mu   sync.Mutex
}

// NewFileLedger 创建文件账本
func NewFileLedger(path string) *FileLedger {
	return &FileLedger{path: path}
}

// Path 账本文件路径
func (l *FileLedger) Path() string {
	return l.path
}

// Load 读取账本，文件不存在视为空
func (l *FileLedger) Load(ctx context.Context) (map[string]struct{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load()
}

func (l *FileLedger) load() (map[string]struct{}, error) {
	set := make(map[string]struct{})
	data, err := os.ReadFile(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return set, nil
	}
	if err != nil {
		return nil, system.NewPersistenceError("load_ledger", l.path, err)
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if name := strings.TrimSpace(scanner.Text()); name != "" {
			set[name] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, system.NewPersistenceError("load_ledger", l.path, err)
	}
	return set, nil
}

// Record 记录文件名并重写账本
func (l *FileLedger) Record(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return system.NewPersistenceError("record_ledger", l.path, errors.New("empty file name"))
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	set, err := l.load()
	if err != nil {
		return err
	}
	if _, ok := set[name]; ok {
		return nil
	}
	set[name] = struct{}{}

	if err := l.write(set); err != nil {
		return system.NewPersistenceError("record_ledger", l.path, err)
	}
	return nil
}

func (l *FileLedger) write(set map[string]struct{}) error {
	names := make([]string, 0, len(set))
	for n := range set {
		names = append(names, n)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	for _, n := range names {
		buf.WriteString(n)
		buf.WriteByte('\n')
	}

	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".tmp-ledger-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, l.path)
}
