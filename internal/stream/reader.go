// reader.go — SSE 传输读取: 字节流 → 有序 (label, payload) 帧序列。
package stream

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"strings"
)

// Reader 按 text/event-stream 分帧读取上游字节流。
//
// 兼容两个协议变体:
//   - 新: event:/data: 行以空行作为帧边界
//   - 旧: 每对 event:+data: 行直接成帧, 无需空行
//
// 实现上以 data: 行作为成帧点 (两个变体下均正确), 空行仅重置挂起标签。
// 缺失 event: 行的帧默认标签 update。底层流关闭时, 若上游未显式发送
// end 帧, Reader 合成一个终止 end 帧后再返回 io.EOF。
type Reader struct {
	br         *bufio.Reader
	label      string
	sawEnd     bool
	errEmitted bool
	endEmitted bool
	pendingErr error
}

// NewReader 创建 Reader。
func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReaderSize(r, 32*1024)}
}

// Next 返回下一帧。流终止后 (含合成 end 帧之后) 返回 io.EOF。
func (r *Reader) Next() (Frame, error) {
	if r.endEmitted {
		return Frame{}, io.EOF
	}
	if r.pendingErr != nil {
		return r.finish()
	}

	for {
		line, err := r.br.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")

		if frame, ok := r.consumeLine(line); ok {
			if err != nil {
				r.pendingErr = err
			}
			return frame, nil
		}
		if err != nil {
			r.pendingErr = err
			return r.finish()
		}
	}
}

// consumeLine 处理单行; 仅 data: 行产出帧。
func (r *Reader) consumeLine(line string) (Frame, bool) {
	switch {
	case line == "":
		// 空行 = 新协议的帧边界; 无 data: 行的纯 event: 帧在此落帧
		if r.label != "" {
			label := r.label
			r.label = ""
			if label == "end" {
				r.sawEnd = true
			}
			return Frame{Label: label}, true
		}
		return Frame{}, false

	case strings.HasPrefix(line, "event:"):
		r.label = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		return Frame{}, false

	case strings.HasPrefix(line, "data:"):
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		label := r.label
		if label == "" {
			label = "update"
		}
		// 旧变体下一帧由下一对 event:+data: 决定, 标签消费后即失效
		r.label = ""
		if label == "end" {
			r.sawEnd = true
		}
		return Frame{Label: label, Data: []byte(data)}, true

	default:
		// 注释行 (":" 前缀) 与未知行一律跳过
		return Frame{}, false
	}
}

// finish 底层流结束。读取失败 (非正常 EOF) 先合成 error 帧;
// 随后若上游未显式发送过 end, 合成终止 end 帧 (恰好一次)。
func (r *Reader) finish() (Frame, error) {
	if r.pendingErr != nil && !errors.Is(r.pendingErr, io.EOF) && !r.errEmitted {
		r.errEmitted = true
		data, _ := json.Marshal(map[string]string{"message": r.pendingErr.Error()})
		return Frame{Label: "error", Data: data}, nil
	}
	r.endEmitted = true
	if r.sawEnd {
		return Frame{}, io.EOF
	}
	return Frame{Label: "end"}, nil
}
