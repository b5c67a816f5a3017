// Package handlers implements the HTTP API: conversion submission,
// artifact and cover delivery, health and stats endpoints, and the
// token-protected admin surface. Handlers stay thin; everything
// interesting happens in the pipeline behind the Converter interface.
package handlers
