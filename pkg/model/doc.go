// Package model defines the descriptors and value containers shared by the
// wizard engine. Pages are ordered lists of fields; each field declares its
// kind, constraints, the fields it reacts to (DependsOn) and rule expressions
// evaluated by pkg/visibility/expr to decide visibility, required-ness and
// enabled-ness. Values is the single mutable record a wizard session owns;
// Context carries the per-session settings fetched once at startup.
package model
