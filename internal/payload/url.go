package payload

import (
	"net/url"
	"regexp"
	"strings"
)

var multiSlashRe = regexp.MustCompile(`/{2,}`)

// FromURL 将 GET 请求路径和查询串转换为单命令 Payload
//
// 格式：<base><cmd>[/<k>/<v>]*[?k=v&...]
//
// 路径不以 base 开头、没有命令段、或命令后的段数为奇数时返回 false。
// 查询参数在路径参数之后合并，同名时覆盖路径参数；重复的查询键取最后一个值。
func FromURL(path, rawQuery, base string) (*Payload, bool) {
	path = multiSlashRe.ReplaceAllString(path, "/")
	if !strings.HasPrefix(path, base) {
		return nil, false
	}
	// base 不以 / 结尾时，/apix 不能匹配 /api
	if !strings.HasSuffix(base, "/") && len(path) > len(base) && path[len(base)] != '/' {
		return nil, false
	}

	rest := strings.Trim(path[len(base):], "/")
	if rest == "" {
		return nil, false
	}

	segments := strings.Split(rest, "/")
	for i, s := range segments {
		u, err := url.PathUnescape(s)
		if err != nil {
			return nil, false
		}
		segments[i] = u
	}

	cmd, pairs := segments[0], segments[1:]
	if cmd == "" || len(pairs)%2 != 0 {
		return nil, false
	}

	args := make(map[string]any, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		args[pairs[i]] = pairs[i+1]
	}

	if rawQuery != "" {
		query, err := url.ParseQuery(rawQuery)
		if err != nil {
			return nil, false
		}
		for k, vals := range query {
			if len(vals) > 0 {
				args[k] = vals[len(vals)-1]
			}
		}
	}

	return &Payload{Commands: []*Command{{Cmd: cmd, Args: args}}}, true
}
