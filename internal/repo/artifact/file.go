package artifact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"neogvm/internal/model/system"
)

// 同一毫秒内重名时顺延的最大次数
const maxNameAttempts = 50

// FileRepository 基于本地目录的制品仓库
type FileRepository struct {
	dirs  map[Area]string
	clock func() time.Time
}

// NewFileRepository 创建文件仓库，dirs 为各区域对应目录
func NewFileRepository(dirs map[Area]string) *FileRepository {
	return &FileRepository{dirs: dirs, clock: time.Now}
}

// WithClock 替换时钟，测试用
func (r *FileRepository) WithClock(clock func() time.Time) *FileRepository {
	r.clock = clock
	return r
}

// Dir 返回区域目录
func (r *FileRepository) Dir(area Area) (string, error) {
	dir, ok := r.dirs[area]
	if !ok || dir == "" {
		return "", fmt.Errorf("artifact area %q is not configured", area)
	}
	return dir, nil
}

// WriteNew 写入制品
func (r *FileRepository) WriteNew(ctx context.Context, area Area, kind Kind, reportID string, data []byte) (*Artifact, error) {
	return r.WriteNewFrom(ctx, area, kind, reportID, bytes.NewReader(data))
}

// WriteNewFrom 先写临时文件并 fsync，再以硬链接落到最终文件名，目标已存在时顺延时间戳重试
func (r *FileRepository) WriteNewFrom(ctx context.Context, area Area, kind Kind, reportID string, src io.Reader) (*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if kind.WithReportID && reportID == "" {
		return nil, system.NewPersistenceError("write_artifact", kind.Prefix, errors.New("report id is required"))
	}
	// reportId 直接拼进文件名，不允许带路径分隔符
	if strings.ContainsAny(reportID, `/\`) || strings.ContainsRune(reportID, 0) {
		return nil, system.NewPersistenceError("write_artifact", kind.Prefix, fmt.Errorf("invalid report id %q", reportID))
	}

	dir, err := r.Dir(area)
	if err != nil {
		return nil, system.NewPersistenceError("write_artifact", kind.Prefix, err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, system.NewPersistenceError("write_artifact", dir, err)
	}

	tmp, size, err := writeTemp(dir, src)
	if err != nil {
		return nil, system.NewPersistenceError("write_artifact", dir, err)
	}
	defer os.Remove(tmp)

	ts := r.clock()
	for attempt := 0; attempt < maxNameAttempts; attempt++ {
		name := kind.FileName(reportID, ts)
		err := os.Link(tmp, filepath.Join(dir, name))
		if err == nil {
			_, stamp, _ := kind.Parse(name)
			return &Artifact{Name: name, Area: area, Kind: kind, ReportID: reportID, Timestamp: stamp, Size: size}, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, system.NewPersistenceError("write_artifact", name, err)
		}
		ts = ts.Add(time.Millisecond)
	}
	return nil, system.NewPersistenceError("write_artifact", kind.Prefix, errors.New("no free artifact name"))
}

func writeTemp(dir string, src io.Reader) (string, int64, error) {
	f, err := os.CreateTemp(dir, ".tmp-artifact-*")
	if err != nil {
		return "", 0, err
	}
	size, err := io.Copy(f, src)
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(f.Name())
		return "", 0, err
	}
	return f.Name(), size, nil
}

// List 列出制品，目录不存在时返回空
func (r *FileRepository) List(ctx context.Context, area Area, kind Kind) ([]*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir, err := r.Dir(area)
	if err != nil {
		return nil, system.NewPersistenceError("list_artifacts", string(area), err)
	}

	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, system.NewPersistenceError("list_artifacts", dir, err)
	}

	var out []*Artifact
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		reportID, stamp, ok := kind.Parse(e.Name())
		if !ok {
			continue
		}
		a := &Artifact{Name: e.Name(), Area: area, Kind: kind, ReportID: reportID, Timestamp: stamp}
		if info, err := e.Info(); err == nil {
			a.Size = info.Size()
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Latest 返回文件名最大的制品
func (r *FileRepository) Latest(ctx context.Context, area Area, kind Kind) (*Artifact, error) {
	list, err := r.List(ctx, area, kind)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("%s*%s in %s: %w", kind.Prefix, kind.Ext, area, system.ErrNotFound)
	}
	return list[len(list)-1], nil
}

// Exists 检查各区域是否已有该 reportId 的制品
func (r *FileRepository) Exists(ctx context.Context, kind Kind, reportID string, areas ...Area) (bool, error) {
	for _, area := range areas {
		list, err := r.List(ctx, area, kind)
		if err != nil {
			return false, err
		}
		for _, a := range list {
			if a.ReportID == reportID {
				return true, nil
			}
		}
	}
	return false, nil
}

func (r *FileRepository) path(a *Artifact) (string, error) {
	dir, err := r.Dir(a.Area)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, a.Name), nil
}

// Open 打开制品
func (r *FileRepository) Open(ctx context.Context, a *Artifact) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := r.path(a)
	if err != nil {
		return nil, system.NewPersistenceError("open_artifact", a.Name, err)
	}
	f, err := os.Open(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("artifact %s: %w", a.Name, system.ErrNotFound)
	}
	if err != nil {
		return nil, system.NewPersistenceError("open_artifact", a.Name, err)
	}
	return f, nil
}

// Read 读取制品
func (r *FileRepository) Read(ctx context.Context, a *Artifact) ([]byte, error) {
	rc, err := r.Open(ctx, a)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, system.NewPersistenceError("read_artifact", a.Name, err)
	}
	return data, nil
}

// Move 原子移动；跨设备时退化为 复制→链接→删除源
func (r *FileRepository) Move(ctx context.Context, a *Artifact, to Area) (*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	src, err := r.path(a)
	if err != nil {
		return nil, system.NewPersistenceError("move_artifact", a.Name, err)
	}
	dir, err := r.Dir(to)
	if err != nil {
		return nil, system.NewPersistenceError("move_artifact", a.Name, err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, system.NewPersistenceError("move_artifact", dir, err)
	}
	dst := filepath.Join(dir, a.Name)

	if err := os.Rename(src, dst); err != nil {
		if !errors.Is(err, syscall.EXDEV) {
			return nil, system.NewPersistenceError("move_artifact", a.Name, err)
		}
		if err := copyAcross(src, dir, dst); err != nil {
			return nil, system.NewPersistenceError("move_artifact", a.Name, err)
		}
	}

	moved := *a
	moved.Area = to
	return &moved, nil
}

func copyAcross(src, dir, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	tmp, _, err := writeTemp(dir, in)
	in.Close()
	if err != nil {
		return err
	}
	defer os.Remove(tmp)
	if err := os.Rename(tmp, dst); err != nil {
		return err
	}
	return os.Remove(src)
}
