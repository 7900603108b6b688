// Package lib provides a Go SDK to run untrusted JavaScript inside isolated
// sandboxes, reusing a booted sandbox for many independent executions.
//
// # Quick Start
//
// Build a sandbox, boot it once, and run scripts in clean cycles:
//
//	proto, err := lib.NewBuilder().
//	    WithHostPrint(func(s string) (int, error) { return fmt.Print(s) }).
//	    Build(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	rt, err := proto.LoadRuntime(ctx) // Boots and captures the clean snapshot.
//	...
//	loaded, err := rt.LoadInterpreter(ctx)
//	...
//	ok, err := loaded.RunScript(ctx, `print("hello")`)
//	...
//	rt, err = loaded.Unload(ctx) // Back to the clean snapshot.
//
// # Lifecycle
//
// Every transition consumes its receiver, using a sandbox object after its
// transition returns [ErrConsumed]:
//
//   - [ProtoSandbox.LoadRuntime] consumes the proto sandbox regardless of the result.
//   - [RuntimeSandbox.LoadInterpreter] consumes the runtime sandbox only on
//     success, on [ErrInitializationFailure] it can be retried.
//   - [LoadedSandbox.Unload] consumes the loaded sandbox regardless of the result.
//
// # Script results
//
// [LoadedSandbox.RunScript] returns true when the script was dispatched to a
// live interpreter. It doesn't report script errors, those are printed through
// the host print function:
//
//	ok, _ := loaded.RunScript(ctx, `this is not javascript`) // ok is true.
//
// # Poisoning
//
// A guest fault or a call timeout ([Builder.WithCallTimeout]) poisons the
// sandbox. Every operation afterwards fails with [ErrPoisoned], the only way
// out is building a new sandbox.
package lib
