// Code generated by dependgen — DO NOT EDIT.
package session_test

import "github.com/srgg/testify/depend"

var CharacteristicTestSuiteTestRegistry = map[string]func(any){
	"TestCapabilities": func(s any) { s.(*CharacteristicTestSuite).TestCapabilities() },
	"TestWrite": func(s any) { s.(*CharacteristicTestSuite).TestWrite() },
	"TestRead": func(s any) { s.(*CharacteristicTestSuite).TestRead() },
	"TestNotifications": func(s any) { s.(*CharacteristicTestSuite).TestNotifications() },
	"TestTypedValues": func(s any) { s.(*CharacteristicTestSuite).TestTypedValues() },
}

var CharacteristicTestSuiteTestOrder = []string{
	"TestCapabilities",
	"TestWrite",
	"TestRead",
	"TestNotifications",
	"TestTypedValues",
}

var CharacteristicTestSuiteDependencies = depend.Depends(func(s any) *depend.Dep {
	dep := new(depend.Dep)
	dep.On("TestTypedValues", "TestRead", "TestWrite")
	return dep
})

// GeneratedDependConfig returns the dependency configuration for CharacteristicTestSuite.
// This method allows CharacteristicTestSuite to be used with depend.RunSuite(t, suite).
// DO NOT implement this method manually - it is auto-generated.
func (s *CharacteristicTestSuite) GeneratedDependConfig() *depend.SuiteConfig {
	return &depend.SuiteConfig{
		Registry: CharacteristicTestSuiteTestRegistry,
		Order:    CharacteristicTestSuiteTestOrder,
		Deps:     CharacteristicTestSuiteDependencies,
	}
}
