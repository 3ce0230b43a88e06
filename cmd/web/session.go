package main

type sessionKey string

const deviceIDSessionKey = sessionKey("deviceID")
