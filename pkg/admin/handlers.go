package admin

import (
	"net/http"
	"time"

	"github.com/IceFireDB/IceFireDB-SWGateway/pkg/configdb"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/gin-gonic/gin"
)

type statusData struct {
	Registered  bool      `json:"registered"`
	Requests    uint64    `json:"requests"`
	Server      string    `json:"server"`
	Root        string    `json:"root"`
	InstallTime time.Time `json:"installTime"`
}

func (s *Server) status(c *gin.Context) {
	g := s.Gateway
	ok(c, statusData{
		Registered:  g.Registered(),
		Requests:    g.Requests(),
		Server:      g.Build.String(),
		Root:        g.Root.String(),
		InstallTime: g.State.Settings(c.Request.Context()).InstallTime,
	})
}

func (s *Server) getConfig(c *gin.Context) {
	ok(c, s.Gateway.State.Config(c.Request.Context()))
}

// configUpdate holds the settings a PUT changes. Absent fields keep their
// stored value.
type configUpdate struct {
	Gateways         []string          `json:"gateways"`
	Routers          []string          `json:"routers"`
	DNSJSONResolvers map[string]string `json:"dnsJsonResolvers"`
	DelegatedRouting *bool             `json:"delegatedRouting"`
	AutoReload       *bool             `json:"autoReload"`
	Debug            *string           `json:"debug"`
	// milliseconds
	FetchTimeout                 *int64 `json:"fetchTimeout"`
	AcceptOriginIsolationWarning *bool  `json:"acceptOriginIsolationWarning"`
	SupportDirectoryIndexes      *bool  `json:"supportDirectoryIndexes"`
	SupportWebRedirects          *bool  `json:"supportWebRedirects"`
}

func (u configUpdate) Validate() error {
	return validation.ValidateStruct(&u,
		validation.Field(&u.Gateways, validation.Each(is.URL)),
		validation.Field(&u.Routers, validation.Each(is.URL)),
		validation.Field(&u.DNSJSONResolvers, validation.Each(is.URL)),
		validation.Field(&u.FetchTimeout, validation.Min(int64(time.Second/time.Millisecond))),
	)
}

func (u configUpdate) values() map[string]interface{} {
	out := map[string]interface{}{}
	if u.Gateways != nil {
		out[configdb.KeyGateways] = u.Gateways
	}
	if u.Routers != nil {
		out[configdb.KeyRouters] = u.Routers
	}
	if u.DNSJSONResolvers != nil {
		out[configdb.KeyDNSJSONResolvers] = u.DNSJSONResolvers
	}
	if u.DelegatedRouting != nil {
		out[configdb.KeyDelegatedRouting] = *u.DelegatedRouting
	}
	if u.AutoReload != nil {
		out[configdb.KeyAutoReload] = *u.AutoReload
	}
	if u.Debug != nil {
		out[configdb.KeyDebug] = *u.Debug
	}
	if u.FetchTimeout != nil {
		out[configdb.KeyFetchTimeout] = *u.FetchTimeout
	}
	if u.AcceptOriginIsolationWarning != nil {
		out[configdb.KeyAcceptOriginIsolationWarning] = *u.AcceptOriginIsolationWarning
	}
	if u.SupportDirectoryIndexes != nil {
		out[configdb.KeySupportDirectoryIndexes] = *u.SupportDirectoryIndexes
	}
	if u.SupportWebRedirects != nil {
		out[configdb.KeySupportWebRedirects] = *u.SupportWebRedirects
	}
	return out
}

// putConfig stores the given settings and reloads the gateway state.
func (s *Server) putConfig(c *gin.Context) {
	var u configUpdate
	if err := c.ShouldBindJSON(&u); err != nil {
		fail(c, http.StatusBadRequest, CodeParamInvalid, err.Error())
		return
	}
	if err := u.Validate(); err != nil {
		fail(c, http.StatusBadRequest, CodeParamInvalid, err.Error())
		return
	}
	values := u.values()
	if len(values) == 0 {
		fail(c, http.StatusBadRequest, CodeParamInvalid, "no settings given")
		return
	}

	ctx := c.Request.Context()
	state := s.Gateway.State
	if err := state.Store.Open(ctx); err != nil {
		failInternal(c, "config store unavailable", err)
		return
	}
	for key, v := range values {
		if err := state.Store.Put(ctx, key, v); err != nil {
			failInternal(c, "could not store "+key, err)
			return
		}
	}
	state.Reset()
	logFor(c).Infof("admin: updated %d config keys", len(values))
	ok(c, state.Config(ctx))
}

func (s *Server) reloadConfig(c *gin.Context) {
	s.Gateway.State.Reset()
	ok(c, s.Gateway.State.Config(c.Request.Context()))
}

type subdomainSupport struct {
	Host      string `json:"host"`
	Supported *bool  `json:"supported"`
}

func (s subdomainSupport) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Host, validation.Required),
		validation.Field(&s.Supported, validation.NotNil),
	)
}

func (s *Server) getSubdomainSupport(c *gin.Context) {
	host := c.DefaultQuery("host", s.Gateway.Root.Host)
	support := s.Gateway.State.SubdomainSupport(c.Request.Context(), host)
	ok(c, gin.H{"host": host, "support": support.String()})
}

func (s *Server) putSubdomainSupport(c *gin.Context) {
	var req subdomainSupport
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, CodeParamInvalid, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		fail(c, http.StatusBadRequest, CodeParamInvalid, err.Error())
		return
	}
	ctx := c.Request.Context()
	if err := s.Gateway.State.Store.SetSubdomainSupport(ctx, req.Host, *req.Supported); err != nil {
		failInternal(c, "could not store subdomain support", err)
		return
	}
	ok(c, gin.H{"host": req.Host, "support": s.Gateway.State.SubdomainSupport(ctx, req.Host).String()})
}

func (s *Server) probeSubdomains(c *gin.Context) {
	supported, err := s.Gateway.ProbeSubdomains(c.Request.Context(), s.Client)
	if err != nil {
		failInternal(c, "subdomain probe failed", err)
		return
	}
	ok(c, gin.H{"host": s.Gateway.Root.Host, "supported": supported})
}

func (s *Server) listCaches(c *gin.Context) {
	if s.Gateway.Caches == nil {
		ok(c, []string{})
		return
	}
	names, err := s.Gateway.Caches.Keys(c.Request.Context())
	if err != nil {
		failInternal(c, "could not list caches", err)
		return
	}
	ok(c, names)
}

func (s *Server) listCacheKeys(c *gin.Context) {
	ctx := c.Request.Context()
	name := c.Param("name")
	caches := s.Gateway.Caches
	if caches == nil {
		fail(c, http.StatusNotFound, CodeNotFound, "cache not found")
		return
	}
	found, err := caches.Has(ctx, name)
	if err != nil {
		failInternal(c, "could not look up cache", err)
		return
	}
	if !found {
		fail(c, http.StatusNotFound, CodeNotFound, "cache not found")
		return
	}
	bucket, err := caches.Open(ctx, name)
	if err != nil {
		failInternal(c, "could not open cache", err)
		return
	}
	keys, err := bucket.Keys(ctx)
	if err != nil {
		failInternal(c, "could not list cache keys", err)
		return
	}
	ok(c, gin.H{"name": name, "keys": keys})
}

func (s *Server) deleteCache(c *gin.Context) {
	name := c.Param("name")
	if s.Gateway.Caches == nil {
		fail(c, http.StatusNotFound, CodeNotFound, "cache not found")
		return
	}
	deleted, err := s.Gateway.Caches.Delete(c.Request.Context(), name)
	if err != nil {
		failInternal(c, "could not delete cache", err)
		return
	}
	if !deleted {
		fail(c, http.StatusNotFound, CodeNotFound, "cache not found")
		return
	}
	logFor(c).Infof("admin: deleted cache %s", name)
	ok(c, gin.H{"name": name})
}

func (s *Server) register(c *gin.Context) {
	if err := s.Gateway.Register(c.Request.Context()); err != nil {
		failInternal(c, "register failed", err)
		return
	}
	ok(c, gin.H{"registered": s.Gateway.Registered()})
}

func (s *Server) unregister(c *gin.Context) {
	if !s.Gateway.Registered() {
		fail(c, http.StatusConflict, CodeStateConflict, "gateway is not registered")
		return
	}
	if err := s.Gateway.Unregister(c.Request.Context()); err != nil {
		failInternal(c, "unregister failed", err)
		return
	}
	ok(c, gin.H{"registered": s.Gateway.Registered()})
}
