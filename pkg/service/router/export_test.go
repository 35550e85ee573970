package router

var ResolveName = resolveName
