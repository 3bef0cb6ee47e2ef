package kernel

// NamedState keys are deterministic strings so ensureX is idempotent across
// repeated calls with the same arguments: globals are "global:<name>",
// per-schema states are "schema:<name>:<aspect>", and per-change states are
// "change:<id>:<aspect>[:<schema>]"; states parameterized by artifact id or
// output path carry that qualifier right after the aspect:
// "change:<id>:<aspect>:<qualifier>[:<schema>]".

func globalKey(name string) string {
	return "global:" + name
}

func schemaKey(name, aspect string) string {
	return "schema:" + name + ":" + aspect
}

// schemaEntityPrefix is the prefix every state key belonging to schema name
// shares, used for the two-phase teardown sweep.
func schemaEntityPrefix(name string) string {
	return "schema:" + name + ":"
}

func schemaEntityID(name string) string {
	return "schema:" + name
}

func changeKey(id, aspect, schema string) string {
	key := "change:" + id + ":" + aspect
	if schema != "" {
		key += ":" + schema
	}
	return key
}

func changeSubKey(id, aspect, qualifier, schema string) string {
	key := "change:" + id + ":" + aspect + ":" + qualifier
	if schema != "" {
		key += ":" + schema
	}
	return key
}

func changeEntityPrefix(id string) string {
	return "change:" + id + ":"
}

func changeEntityID(id string) string {
	return "change:" + id
}
