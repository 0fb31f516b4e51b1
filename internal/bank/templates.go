package bank

// DefaultTemplate returns the starter content seeded for a document type on
// first run. Templates give the assistant a scaffold to fill in rather than
// an empty file.
func DefaultTemplate(ft FileType) string {
	switch ft {
	case ProjectBrief:
		return `# Project Brief

## Overview

_Describe what this project is and why it exists._

## Goals

-

## Scope

-
`
	case ProductContext:
		return `# Product Context

## Problem

_What problem does this product solve?_

## Users

_Who uses it and how?_

## Experience Goals

-
`
	case ActiveContext:
		return `# Active Context

## Current Focus

_What is being worked on right now?_

## Recent Changes

-

## Next Steps

-
`
	case SystemPatterns:
		return `# System Patterns

## Architecture

_High-level structure and key decisions._

## Patterns

-
`
	case TechContext:
		return `# Tech Context

## Stack

-

## Constraints

-

## Dependencies

-
`
	case Progress:
		return `# Progress

## Done

-

## In Progress

-

## Known Issues

-
`
	default:
		return ""
	}
}
