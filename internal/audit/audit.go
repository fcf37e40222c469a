// 包 audit 经济事务审计日志
// 追加式文本日志，由单个后台 worker 异步落盘，写入延迟或失败永不影响
// 账本操作的正确性与响应时间。行格式被外部日志检索方依赖，必须保持：
//
//	[2006-01-02 15:04:05] [KIND] source -> target: $amount (details)
//
// 金额为普通十进制表示，无指数记法。
package audit

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/gameeconomy/pkg/logger"
	"github.com/wyfcoding/gameeconomy/pkg/metrics"
)

// timeLayout 审计行时间戳格式
const timeLayout = "2006-01-02 15:04:05"

// lineRe 审计行解析表达式
var lineRe = regexp.MustCompile(`^\[([^\]]+)\] \[([^\]]+)\] (.+?) -> (.+?): \$(\S+) \((.*)\)$`)

// Entry 结构化的审计记录
type Entry struct {
	Time    time.Time
	Kind    string
	Source  string
	Target  string
	Amount  decimal.Decimal
	Details string
}

// String 渲染为审计行（不含换行）
func (e Entry) String() string {
	return fmt.Sprintf("[%s] [%s] %s -> %s: $%s (%s)",
		e.Time.Format(timeLayout), e.Kind, e.Source, e.Target, e.Amount.String(), e.Details)
}

// ParseLine 解析一条审计行，格式不符时返回 false
func ParseLine(line string) (Entry, bool) {
	m := lineRe.FindStringSubmatch(line)
	if m == nil {
		return Entry{}, false
	}
	ts, err := time.ParseInLocation(timeLayout, m[1], time.Local)
	if err != nil {
		return Entry{}, false
	}
	amount, err := decimal.NewFromString(m[5])
	if err != nil {
		return Entry{}, false
	}
	return Entry{
		Time:    ts,
		Kind:    m[2],
		Source:  m[3],
		Target:  m[4],
		Amount:  amount,
		Details: m[6],
	}, true
}

// Logger 异步审计日志
type Logger struct {
	path    string
	queue   chan Entry
	wg      sync.WaitGroup
	metrics *metrics.Metrics

	mu sync.Mutex // 保护文件追加与 Search 之间的读写并发
}

// New 创建审计日志并启动后台 worker
func New(path string, queueSize int, m *metrics.Metrics) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create audit log dir: %w", err)
	}

	l := &Logger{
		path:    path,
		queue:   make(chan Entry, queueSize),
		metrics: m,
	}
	l.wg.Add(1)
	go l.drain()
	return l, nil
}

// Record 入队一条审计记录；队列满时丢弃并告警（fail-open）
func (l *Logger) Record(kind, source, target string, amount decimal.Decimal, details string) {
	e := Entry{
		Time:    time.Now(),
		Kind:    kind,
		Source:  source,
		Target:  target,
		Amount:  amount,
		Details: details,
	}
	select {
	case l.queue <- e:
	default:
		if l.metrics != nil {
			l.metrics.AuditDroppedTotal.Inc()
		}
		logger.Warn(context.Background(), "Audit queue full, record dropped",
			"kind", kind, "source", source, "target", target)
	}
}

// drain 单消费者落盘循环
func (l *Logger) drain() {
	defer l.wg.Done()
	for e := range l.queue {
		if err := l.append(e); err != nil {
			logger.Error(context.Background(), "Failed to write audit record", "error", err)
		}
	}
}

// append 追加一条审计行
func (l *Logger) append(e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = fmt.Fprintln(f, e.String())
	return err
}

// Search 按时间窗口与目标子串检索审计记录，最新在前
// target 为 "*" 时不做子串过滤。
func (l *Logger) Search(target string, since time.Time) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	needle := strings.ToLower(target)
	var results []Entry

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		e, ok := ParseLine(line)
		if !ok {
			continue
		}
		if !e.Time.After(since) {
			continue
		}
		if target != "*" && !strings.Contains(strings.ToLower(line), needle) {
			continue
		}
		results = append(results, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	// 反转为最新在前
	for i, j := 0, len(results)-1; i < j; i, j = i+1, j-1 {
		results[i], results[j] = results[j], results[i]
	}
	return results, nil
}

// Close 停止接收并排空队列
func (l *Logger) Close() {
	close(l.queue)
	l.wg.Wait()
}
