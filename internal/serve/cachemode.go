package serve

// CacheSource says which cache tier may answer prediction requests.
// It is derived from the request's toggles, never supplied directly.
type CacheSource int

const (
	SourceUnset CacheSource = iota
	SourceLocalOnly
	SourceCloudOnly
	SourceHybrid
)

func (s CacheSource) String() string {
	switch s {
	case SourceLocalOnly:
		return "local-only"
	case SourceCloudOnly:
		return "cloud-only"
	case SourceHybrid:
		return "hybrid"
	default:
		return "unset"
	}
}

// CacheResolution is the authoritative cache decision for one request.
type CacheResolution struct {
	Source       CacheSource
	LocalEnabled bool
}

// StatusLabel derives the caller-visible mode label from the source.
// It is a function of the resolution, never stored separately.
func (r CacheResolution) StatusLabel() string {
	switch r.Source {
	case SourceLocalOnly:
		return "Local only"
	case SourceCloudOnly:
		return "Cloud only"
	case SourceHybrid:
		return "Hybrid (local & cloud)"
	default:
		return "Disabled"
	}
}

// cacheRule rewrites the resolution when its toggle is set.
type cacheRule struct {
	matches func(Request) bool
	apply   func(*CacheResolution)
}

// cacheRules are applied in order and every matching rule overwrites
// the previous outcome, so with several toggles set the last matching
// rule wins. Callers setting multiple toggles get no error; the order
// below is the contract.
var cacheRules = []cacheRule{
	{
		matches: func(r Request) bool { return r.LocalCacheOnly },
		apply: func(res *CacheResolution) {
			res.Source = SourceLocalOnly
			res.LocalEnabled = true
		},
	},
	{
		matches: func(r Request) bool { return r.CloudCacheOnly },
		apply: func(res *CacheResolution) {
			res.Source = SourceCloudOnly
		},
	},
	{
		matches: func(r Request) bool { return r.CacheOnly },
		apply: func(res *CacheResolution) {
			res.Source = SourceHybrid
			res.LocalEnabled = true
		},
	},
}

// ResolveCacheMode maps the request's overlapping cache toggles onto
// one cache source. The baseline local-cache flag comes from the
// request and is only forced on by the local-only and hybrid rules.
func ResolveCacheMode(req Request) CacheResolution {
	res := CacheResolution{Source: SourceUnset, LocalEnabled: req.EnableLocalCache}
	for _, rule := range cacheRules {
		if rule.matches(req) {
			rule.apply(&res)
		}
	}
	return res
}
