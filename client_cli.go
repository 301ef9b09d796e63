package roda

import (
	"fmt"
	"io"
	"strings"

	"github.com/gosuri/uitable"
	"github.com/juju/errors"

	"github.com/angelodlfrtr/go-roda/cli"
	"github.com/angelodlfrtr/go-roda/od"
)

type cliSubCommand struct {
	name    string
	usage   string
	summary string
	run     func(c *ClientBase, ctx *cli.Context) error
}

var cliSubCommands = []cliSubCommand{
	{"enum", "enum [FIRST-LAST]", "enumerate objects", (*ClientBase).CLIEnumerate},
	{"info", "info INDEX [asm]", "describe an object and its subindices", (*ClientBase).CLIInfo},
	{"read", "read INDEX:SI", "read a subindex", (*ClientBase).CLIRead},
	{"write", "write INDEX:SI DATA", "write a subindex", (*ClientBase).CLIWrite},
	{"caread", "caread INDEX [v]", "read an object using complete access", (*ClientBase).CLICARead},
	{"cawrite", "cawrite INDEX", "write an object using complete access", (*ClientBase).CLICAWrite},
}

func findCLISubCommand(name string) (cliSubCommand, bool) {
	for _, cmd := range cliSubCommands {
		if cmd.name == name {
			return cmd, true
		}
	}
	return cliSubCommand{}, false
}

func printCLIUsage(w io.Writer, prefix string) {
	table := uitable.New()
	for _, cmd := range cliSubCommands {
		table.AddRow(strings.TrimSpace(prefix+" "+cmd.usage), cmd.summary)
	}
	fmt.Fprintln(w, table)
}

func printAbort(w io.Writer, abort od.AbortCode) {
	fmt.Fprintf(w, "Abort: %s\n", abort)
}

// CLIEnumerate lists the objects in a range, by default all of them.
func (c *ClientBase) CLIEnumerate(ctx *cli.Context) error {
	if err := cli.ExpectArgs(ctx.Args, 0, 1, "enum [FIRST-LAST]"); err != nil {
		return err
	}
	first, last := uint16(0x0000), uint16(0xFFFF)
	if len(ctx.Args) == 1 {
		var err error
		if first, last, err = cli.ParseIndexRange(ctx.Args[0]); err != nil {
			return err
		}
	}

	indices, abort, err := c.Enumerate(first, last, od.AttrRW)
	if err != nil {
		return errors.Annotate(err, "enumerate")
	}
	if !abort.OK() {
		printAbort(ctx.Out, abort)
		return nil
	}

	table := uitable.New()
	table.AddRow("INDEX", "CODE", "NAME")
	for _, index := range indices {
		info, abort, err := c.GetObjectInfoSingleSI(index, 0, false)
		switch {
		case err != nil:
			return errors.Annotatef(err, "object info 0x%04X", index)
		case !abort.OK():
			table.AddRow(fmt.Sprintf("0x%04X", index), "-", abort.Description())
		default:
			table.AddRow(fmt.Sprintf("0x%04X", index), info.ObjectCode, info.Name)
		}
	}
	fmt.Fprintln(ctx.Out, table)
	fmt.Fprintf(ctx.Out, "%d objects\n", len(indices))
	return nil
}

// CLIInfo prints the description of an object.
func (c *ClientBase) CLIInfo(ctx *cli.Context) error {
	if err := cli.ExpectArgs(ctx.Args, 1, 2, "info INDEX [asm]"); err != nil {
		return err
	}
	index, err := cli.ParseIndex(ctx.Args[0])
	if err != nil {
		return err
	}
	inclASM := false
	if len(ctx.Args) == 2 {
		if ctx.Args[1] != "asm" {
			return errors.NotValidf("option %q, want asm", ctx.Args[1])
		}
		inclASM = true
	}

	info, abort, err := c.GetObjectInfo(index, inclASM)
	if err != nil {
		return errors.Annotatef(err, "object info 0x%04X", index)
	}
	if !abort.OK() {
		printAbort(ctx.Out, abort)
		return nil
	}

	fmt.Fprintf(ctx.Out, "0x%04X %s %q (%s), %d subindices\n", info.Index, info.ObjectCode, info.Name, info.DataType, info.MaxNbOfSubindices)
	table := uitable.New()
	header := []interface{}{"SI", "TYPE", "ACCESS", "SIZE", "NAME"}
	if inclASM {
		header = append(header, "ASM")
	}
	table.AddRow(header...)
	for i, si := range info.Subindices {
		sub := int(info.FirstSubIndex) + i
		if si.Empty {
			table.AddRow(sub, "(empty)")
			continue
		}
		row := []interface{}{sub, si.DataType, si.Attributes.AccessString(), si.MaxSize, si.Name}
		if inclASM {
			row = append(row, fmt.Sprintf("% X", si.AppSpecificMetaData))
		}
		table.AddRow(row...)
	}
	fmt.Fprintln(ctx.Out, table)
	return nil
}

// CLIRead reads a subindex and prints its value.
func (c *ClientBase) CLIRead(ctx *cli.Context) error {
	if err := cli.ExpectArgs(ctx.Args, 1, 1, "read INDEX:SI"); err != nil {
		return err
	}
	index, si, err := cli.ParseIndexSubIndex(ctx.Args[0])
	if err != nil {
		return err
	}

	resp, err := c.Read(index, si, false)
	if err != nil {
		return errors.Annotatef(err, "read 0x%04X:%d", index, si)
	}
	if !resp.Result.OK() {
		printAbort(ctx.Out, resp.Result)
		return nil
	}

	dt := od.Domain
	if info, abort, err := c.GetObjectInfoSingleSI(index, si, false); err == nil && abort.OK() && !info.Subindices[0].Empty {
		dt = info.Subindices[0].DataType
	}
	fmt.Fprintf(ctx.Out, "0x%04X:%d = %s\n", index, si, od.FormatValue(dt, resp.Data))
	return nil
}

// CLIWrite parses a value according to the data type of the subindex and
// writes it.
func (c *ClientBase) CLIWrite(ctx *cli.Context) error {
	if err := cli.ExpectArgs(ctx.Args, 2, 2, "write INDEX:SI DATA"); err != nil {
		return err
	}
	index, si, err := cli.ParseIndexSubIndex(ctx.Args[0])
	if err != nil {
		return err
	}

	info, abort, err := c.GetObjectInfoSingleSI(index, si, false)
	if err != nil {
		return errors.Annotatef(err, "object info 0x%04X:%d", index, si)
	}
	if !abort.OK() {
		printAbort(ctx.Out, abort)
		return nil
	}
	desc := info.Subindices[0]
	if desc.Empty {
		printAbort(ctx.Out, od.AbortSubUnknown)
		return nil
	}
	data, err := od.ParseValue(desc.DataType, ctx.Args[1])
	if err != nil {
		return err
	}

	if abort, err = c.Write(index, si, false, data); err != nil {
		return errors.Annotatef(err, "write 0x%04X:%d", index, si)
	}
	if !abort.OK() {
		printAbort(ctx.Out, abort)
		return nil
	}
	fmt.Fprintln(ctx.Out, "OK")
	return nil
}

// CLICARead reads an object using complete access. With "v" the data is
// split into its subindices.
func (c *ClientBase) CLICARead(ctx *cli.Context) error {
	if err := cli.ExpectArgs(ctx.Args, 1, 2, "caread INDEX [v]"); err != nil {
		return err
	}
	index, err := cli.ParseIndex(ctx.Args[0])
	if err != nil {
		return err
	}
	verbose := false
	if len(ctx.Args) == 2 {
		if ctx.Args[1] != "v" {
			return errors.NotValidf("option %q, want v", ctx.Args[1])
		}
		verbose = true
	}

	resp, err := c.Read(index, 0, true)
	if err != nil {
		return errors.Annotatef(err, "complete read 0x%04X", index)
	}
	if !resp.Result.OK() {
		printAbort(ctx.Out, resp.Result)
		return nil
	}
	fmt.Fprintf(ctx.Out, "0x%04X: %d bytes\n", index, len(resp.Data))
	if !verbose {
		fmt.Fprintf(ctx.Out, "% X\n", resp.Data)
		return nil
	}

	info, abort, err := c.GetObjectInfo(index, false)
	if err != nil {
		return errors.Annotatef(err, "object info 0x%04X", index)
	}
	if !abort.OK() {
		printAbort(ctx.Out, abort)
		return nil
	}
	table := uitable.New()
	table.AddRow("SI", "NAME", "VALUE")
	data := resp.Data
	if len(data) > 0 {
		table.AddRow(0, subindexName(info, 0), od.FormatValue(od.Unsigned8, data[:1]))
		si0 := data[0]
		data = data[1:]
		for si := 1; si <= int(si0) && len(data) > 0; si++ {
			desc, ok := info.Subindex(uint8(si))
			if !ok || desc.Empty {
				continue
			}
			size := desc.DataType.Size()
			if size == 0 || size > len(data) {
				// Variable length data cannot be split further.
				table.AddRow(si, desc.Name, od.FormatValue(od.Domain, data))
				data = nil
				break
			}
			table.AddRow(si, desc.Name, od.FormatValue(desc.DataType, data[:size]))
			data = data[size:]
		}
	}
	fmt.Fprintln(ctx.Out, table)
	return nil
}

func subindexName(info *ObjectInfo, si uint8) string {
	if desc, ok := info.Subindex(si); ok && !desc.Empty {
		return desc.Name
	}
	return ""
}

// CLICAWrite prompts for the value of every subindex of an object and
// writes them using complete access.
func (c *ClientBase) CLICAWrite(ctx *cli.Context) error {
	if err := cli.ExpectArgs(ctx.Args, 1, 1, "cawrite INDEX"); err != nil {
		return err
	}
	index, err := cli.ParseIndex(ctx.Args[0])
	if err != nil {
		return err
	}
	if ctx.Prompter == nil {
		return errors.NotSupportedf("cawrite without interactive input")
	}

	info, abort, err := c.GetObjectInfo(index, false)
	if err != nil {
		return errors.Annotatef(err, "object info 0x%04X", index)
	}
	if !abort.OK() {
		printAbort(ctx.Out, abort)
		return nil
	}
	if info.ObjectCode != od.ObjectCodeArray && info.ObjectCode != od.ObjectCodeRecord {
		return errors.NotSupportedf("complete access to %s object 0x%04X", info.ObjectCode, index)
	}

	prompt := func(si uint8, desc *SubindexDescription) ([]byte, error) {
		if desc.DataType.VariableLength() {
			return nil, errors.NotSupportedf("complete write of %s subindex %d", desc.DataType, si)
		}
		line, err := ctx.Prompter.Prompt(fmt.Sprintf("SI %d %s (%s): ", si, desc.Name, desc.DataType))
		if err != nil {
			return nil, errors.Annotatef(err, "input for subindex %d", si)
		}
		return od.ParseValue(desc.DataType, line)
	}

	si0Desc, ok := info.Subindex(0)
	if !ok || si0Desc.Empty {
		return errors.NotValidf("object 0x%04X without subindex 0", index)
	}
	data, err := prompt(0, si0Desc)
	if err != nil {
		return err
	}
	si0 := data[0]
	for si := 1; si <= int(si0); si++ {
		desc, ok := info.Subindex(uint8(si))
		if !ok || desc.Empty {
			continue
		}
		value, err := prompt(uint8(si), desc)
		if err != nil {
			return err
		}
		data = append(data, value...)
	}

	if abort, err = c.Write(index, 0, true, data); err != nil {
		return errors.Annotatef(err, "complete write 0x%04X", index)
	}
	if !abort.OK() {
		printAbort(ctx.Out, abort)
		return nil
	}
	fmt.Fprintln(ctx.Out, "OK")
	return nil
}

// runCLI dispatches ctx.Args[0] to the matching CLI method.
func (c *ClientBase) runCLI(ctx *cli.Context, prefix string) error {
	if len(ctx.Args) == 0 || ctx.Args[0] == "help" {
		printCLIUsage(ctx.Out, prefix)
		return nil
	}
	sub, ok := findCLISubCommand(ctx.Args[0])
	if !ok {
		return errors.NotFoundf("sub-command %q", ctx.Args[0])
	}
	return sub.run(c, &cli.Context{Args: ctx.Args[1:], Out: ctx.Out, Prompter: ctx.Prompter})
}
