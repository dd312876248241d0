package handler

type ContextKey string

var (
	ActorCtxKey ContextKey = "actor"
	OfficerCtx  ContextKey = "officer"
)
