package transport

import (
	"net/url"
	"path"
	"sort"

	log "github.com/sirupsen/logrus"
	"github.com/warriorguo/nodesync/utils"
)

var (
	_ SyncURLExtension = &StaticExtension{}
)

// StaticExtension resolves extension urls to fixed base urls taken from
// configuration. The path and query of the extension url are carried
// over, so ext://lb/sync/corp resolves to <base>/sync/corp.
type StaticExtension struct {
	targets map[string]string
}

func NewStaticExtension(targets map[string]string) *StaticExtension {
	return &StaticExtension{targets: utils.CloneMap(targets)}
}

func (s *StaticExtension) Names() []string {
	names := make([]string, 0, len(s.targets))
	for name := range s.targets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *StaticExtension) ResolveURL(u *url.URL) string {
	target, exists := s.targets[u.Host]
	if !exists {
		log.Errorf("static extension has no target for %s", u.Host)
		return u.String()
	}
	base, err := url.Parse(target)
	if err != nil {
		log.Errorf("static extension target %q for %s is invalid: %v", target, u.Host, err)
		return target
	}
	if u.Path != "" && u.Path != "/" {
		base.Path = path.Join("/", base.Path, u.Path)
	}
	if u.RawQuery != "" {
		if base.RawQuery != "" {
			base.RawQuery += "&" + u.RawQuery
		} else {
			base.RawQuery = u.RawQuery
		}
	}
	return base.String()
}
